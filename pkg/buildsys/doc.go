// Package buildsys implements distkit's task engine. Tasks are declared in a
// Starlark file and their commands run through mvdan.cc/sh which gives us the
// same shell behavior on every platform.
package buildsys
