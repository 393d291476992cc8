package buildsys

import (
	"encoding/gob"
	"os"

	"github.com/rotisserie/eris"
)

// SaveOptions persists option values so later runs pick them up without
// repeating them on the command line.
func SaveOptions(file string, options map[string]string) error {
	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", file)
	}
	defer handle.Close()

	err = gob.NewEncoder(handle).Encode(options)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", file)
	}
	return nil
}

// LoadOptions reads previously saved option values. A missing cache file is
// not an error, it just yields an empty map.
func LoadOptions(file string) (map[string]string, error) {
	handle, err := os.Open(file)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, eris.Wrapf(err, "failed to open %s", file)
	}
	defer handle.Close()

	options := map[string]string{}
	err = gob.NewDecoder(handle).Decode(&options)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", file)
	}

	return options, nil
}
