package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/service"
)

var errQuantityFormat = &service.Error{Kind: service.ErrInvalidValue, Message: "carico and scarico must be whole numbers"}

// bindItemPayload reads an add/update request. Multipart requests provide
// form fields and an optional "foto" file; anything else is read as a JSON
// body, where an empty body is an empty payload. The returned closer
// releases the uploaded file and is never nil.
func bindItemPayload(c *gin.Context) (*service.ItemPayload, *service.Upload, func(), error) {
	noop := func() {}
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		return bindMultipartPayload(c)
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, nil, noop, &service.Error{Kind: service.ErrValidation, Message: "cannot read request body"}
	}

	payload := &service.ItemPayload{}
	if len(bytes.TrimSpace(body)) == 0 {
		return payload, nil, noop, nil
	}
	if err := json.Unmarshal(body, payload); err != nil {
		if errors.Is(err, service.ErrInvalidValue) {
			return nil, nil, noop, errQuantityFormat
		}
		return nil, nil, noop, &service.Error{Kind: service.ErrValidation, Message: "invalid JSON body"}
	}
	return payload, nil, noop, nil
}

func bindMultipartPayload(c *gin.Context) (*service.ItemPayload, *service.Upload, func(), error) {
	noop := func() {}

	carico, err := service.ParseQuantity(c.PostForm("carico"))
	if err != nil {
		return nil, nil, noop, errQuantityFormat
	}
	scarico, err := service.ParseQuantity(c.PostForm("scarico"))
	if err != nil {
		return nil, nil, noop, errQuantityFormat
	}

	payload := &service.ItemPayload{
		CodiceArticolo: c.PostForm("codice_articolo"),
		Descrizione:    c.PostForm("descrizione"),
		UnitaMisura:    c.PostForm("unita_misura"),
		Locazione:      c.PostForm("locazione"),
		DataIngresso:   c.PostForm("data_ingresso"),
		Foto:           c.PostForm("foto"),
		Carico:         carico,
		Scarico:        scarico,
	}

	header, err := c.FormFile("foto")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return payload, nil, noop, nil
		}
		return nil, nil, noop, &service.Error{Kind: service.ErrValidation, Message: "invalid multipart body"}
	}
	if header.Filename == "" {
		return payload, nil, noop, nil
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, noop, err
	}
	return payload, &service.Upload{Filename: header.Filename, Content: file}, closeFile(file), nil
}

func closeFile(f multipart.File) func() {
	return func() { _ = f.Close() }
}
