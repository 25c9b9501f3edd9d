package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Merge concatenates PDF documents into one, preserving input order.
func Merge(docs [][]byte) ([]byte, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("nothing to merge")
	}
	if len(docs) == 1 {
		return docs[0], nil
	}

	readers := make([]io.ReadSeeker, len(docs))
	for i, doc := range docs {
		readers[i] = bytes.NewReader(doc)
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, nil); err != nil {
		return nil, fmt.Errorf("merging %d documents: %w", len(docs), err)
	}
	return buf.Bytes(), nil
}

// Rotate rotates every page of a document by the given degrees
// (multiple of 90; negative rotates counter-clockwise).
func Rotate(doc []byte, degrees int) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.Rotate(bytes.NewReader(doc), &buf, degrees, nil, nil); err != nil {
		return nil, fmt.Errorf("rotating document: %w", err)
	}
	return buf.Bytes(), nil
}
