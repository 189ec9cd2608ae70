package fetch

import (
	"bytes"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
)

// FileUpload is one file part of a multipart request body.
//
// Open must return a fresh reader on every call: multipart bodies are
// streamed once per physical attempt, so retried or redirected attempts
// re-open every part.
type FileUpload struct {
	// FieldName is the form field name for the file.
	FieldName string

	// FileName is the file name as it appears in the part headers.
	FileName string

	// Open yields the part content.
	Open func() (io.ReadCloser, error)
}

// WithFile adds a multipart file upload from a file path. The file is
// opened when an attempt is sent, not when the descriptor is built.
func WithFile(fieldName, filePath string) RequestOption {
	return func(d *Descriptor) {
		d.fileUploads = append(d.fileUploads, FileUpload{
			FieldName: fieldName,
			FileName:  filepath.Base(filePath),
			Open: func() (io.ReadCloser, error) {
				return os.Open(filePath)
			},
		})
	}
}

// WithFileContent adds a multipart file upload from an in-memory payload.
func WithFileContent(fieldName, fileName string, content []byte) RequestOption {
	return func(d *Descriptor) {
		d.fileUploads = append(d.fileUploads, FileUpload{
			FieldName: fieldName,
			FileName:  fileName,
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(content)), nil
			},
		})
	}
}

// WithFormField adds a plain form field. Combined with WithFile the field
// becomes part of the multipart body; on its own it produces a multipart
// body with only fields.
func WithFormField(key, value string) RequestOption {
	return func(d *Descriptor) {
		if d.formFields == nil {
			d.formFields = make(map[string]string)
		}
		d.formFields[key] = value
	}
}

// multipartBody builds a re-creatable multipart body. The boundary is
// fixed at build time so every attempt (and the Content-Type header)
// agree on it.
func multipartBody(files []FileUpload, fields map[string]string) (*Body, error) {
	boundary := multipart.NewWriter(io.Discard).Boundary()

	factory := func() (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		go func() {
			mw := multipart.NewWriter(pw)
			if err := mw.SetBoundary(boundary); err != nil {
				pw.CloseWithError(err)
				return
			}
			if err := writeMultipart(mw, files, fields); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.CloseWithError(mw.Close())
		}()
		return pr, nil
	}

	return &Body{
		Kind:        BodyMultipart,
		factory:     factory,
		boundary:    boundary,
		contentType: "multipart/form-data; boundary=" + boundary,
	}, nil
}

func writeMultipart(mw *multipart.Writer, files []FileUpload, fields map[string]string) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.FieldName, f.FileName)
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		_, err = io.Copy(part, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
