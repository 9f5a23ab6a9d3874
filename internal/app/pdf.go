package app

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// validatePDF confirms the staged file actually parses as a PDF before it is
// labeled and stored as one. The library can panic on hostile input, so the
// check recovers and treats a panic as a parse failure.
func validatePDF(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed document", ErrNotPDF)
		}
	}()
	file, reader, openErr := pdf.Open(path)
	if openErr != nil {
		return fmt.Errorf("%w: %v", ErrNotPDF, openErr)
	}
	defer file.Close()
	if reader.NumPage() < 1 {
		return fmt.Errorf("%w: document has no pages", ErrNotPDF)
	}
	return nil
}
