package blogapi

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-blog-web/internal/web/blog/model"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartRequest encodes fields and files as multipart/form-data.
// Empty fields are skipped.
func multipartRequest(method, path string, fields map[string]string, files ...*model.Upload) (*request, error) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)

	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, errors.Wrapf(err, "write field %q", k)
		}
	}

	for _, f := range files {
		if f == nil {
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			`form-data; name="`+quoteEscaper.Replace(f.FieldName)+
				`"; filename="`+quoteEscaper.Replace(f.FileName)+`"`)
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, errors.Wrapf(err, "create part %q", f.FieldName)
		}
		if _, err = part.Write(f.Content); err != nil {
			return nil, errors.Wrapf(err, "write part %q", f.FieldName)
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}

	return &request{
		method:      method,
		path:        path,
		body:        buf,
		contentType: w.FormDataContentType(),
	}, nil
}
