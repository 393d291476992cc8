package pkg

import (
	"bytes"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
)

// DocPage describes one rendered documentation page
type DocPage struct {
	Title string
	Path  string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} - {{.Site}}</title>
</head>
<body>
<main>
{{.Body}}
</main>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Site}}</title>
</head>
<body>
<h1>{{.Site}}</h1>
<ul>
{{range .Pages}}<li><a href="{{.Path}}">{{.Title}}</a></li>
{{end}}</ul>
</body>
</html>
`))

// pageTitle returns the first heading of a Markdown document or the file
// name if there is none
func pageTitle(source []byte, relPath string) string {
	for _, line := range strings.Split(string(source), "\n") {
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
	}

	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RenderDocs converts a Markdown tree into HTML documentation. Files that
// aren't Markdown are copied through as assets. If the source tree has no
// index.md, an index page linking every rendered page is generated.
func RenderDocs(srcDir, outDir, siteTitle string) ([]DocPage, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", srcDir)
	}
	if !info.IsDir() {
		return nil, eris.Errorf("%s is not a directory", srcDir)
	}

	outDir, err = filepath.Abs(outDir)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", outDir)
	}

	md := goldmark.New()
	pages := make([]DocPage, 0)
	haveIndex := false

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		// don't descend into the output if it's nested in the source tree
		if info.IsDir() {
			abs, err := filepath.Abs(path)
			if err == nil && abs == outDir {
				return filepath.SkipDir
			}
			if strings.HasPrefix(filepath.Base(path), ".") && relPath != "." {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(filepath.Base(path), ".") {
			return nil
		}

		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return copyFile(path, prepareDest(outDir, relPath))
		}

		source, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", path)
		}

		body := bytes.Buffer{}
		err = md.Convert(source, &body)
		if err != nil {
			return eris.Wrapf(err, "failed to render %s", path)
		}

		htmlPath := strings.TrimSuffix(relPath, filepath.Ext(relPath)) + ".html"
		page := DocPage{
			Title: pageTitle(source, relPath),
			Path:  filepath.ToSlash(htmlPath),
		}

		dest := prepareDest(outDir, htmlPath)
		handle, err := os.Create(dest)
		if err != nil {
			return eris.Wrapf(err, "failed to create %s", dest)
		}

		err = pageTemplate.Execute(handle, map[string]interface{}{
			"Title": page.Title,
			"Site":  siteTitle,
			"Body":  template.HTML(body.String()),
		})
		if closeErr := handle.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return eris.Wrapf(err, "failed to write %s", dest)
		}

		if page.Path == "index.html" {
			haveIndex = true
		} else {
			pages = append(pages, page)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to process %s", srcDir)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Title < pages[j].Title })

	if !haveIndex {
		dest := prepareDest(outDir, "index.html")
		handle, err := os.Create(dest)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to create %s", dest)
		}

		err = indexTemplate.Execute(handle, map[string]interface{}{
			"Site":  siteTitle,
			"Pages": pages,
		})
		if closeErr := handle.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, eris.Wrapf(err, "failed to write %s", dest)
		}
	}

	return pages, nil
}

func prepareDest(outDir, relPath string) string {
	dest := filepath.Join(outDir, relPath)
	os.MkdirAll(filepath.Dir(dest), 0770)
	return dest
}
