package apiclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/bytedance/sonic"
)

// FormData is sent as multipart/form-data with a generated boundary.
type FormData struct {
	Fields map[string][]string
	Files  []FormFile
}

type FormFile struct {
	Field    string
	Filename string
	Content  []byte
}

// Raw is sent as-is with its own content type.
type Raw struct {
	ContentType string
	Data        []byte
}

type encodedBody struct {
	data        []byte
	contentType string
}

// encodeBody turns opts.Body into bytes once so a retried request can resend
// it. An explicit Content-Type header passes readers and byte slices through.
func encodeBody(body any, header http.Header) (*encodedBody, error) {
	explicit := header.Get("Content-Type")

	switch b := body.(type) {
	case nil:
		return nil, nil
	case *FormData:
		return encodeForm(b)
	case FormData:
		return encodeForm(&b)
	case Raw:
		return &encodedBody{data: b.Data, contentType: b.ContentType}, nil
	case io.Reader:
		if explicit == "" {
			return nil, fmt.Errorf("reader body requires an explicit Content-Type")
		}
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, err
		}
		return &encodedBody{data: data, contentType: explicit}, nil
	case []byte:
		if explicit != "" {
			return &encodedBody{data: b, contentType: explicit}, nil
		}
	case string:
		if explicit != "" {
			return &encodedBody{data: []byte(b), contentType: explicit}, nil
		}
	}

	data, err := sonic.Marshal(body)
	if err != nil {
		return nil, err
	}
	ct := explicit
	if ct == "" {
		ct = "application/json"
	}
	return &encodedBody{data: data, contentType: ct}, nil
}

func encodeForm(f *FormData) (*encodedBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, values := range f.Fields {
		for _, v := range values {
			if err := w.WriteField(name, v); err != nil {
				return nil, err
			}
		}
	}
	for _, file := range f.Files {
		part, err := w.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &encodedBody{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}
