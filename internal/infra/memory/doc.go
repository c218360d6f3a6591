// Package memory provides process-local implementations of the scan
// repositories. They back the local scan command and tests; data does not
// survive the process.
package memory
