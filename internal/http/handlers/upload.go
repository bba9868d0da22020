package handlers

import (
	"errors"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/ignatzorin/errands-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errands-backend/internal/service"
)

// uploadPolicy допустимые типы файла для поля формы.
type uploadPolicy struct {
	mimeTypes map[string]struct{}
}

var (
	pictureUpload = uploadPolicy{mimeTypes: map[string]struct{}{
		"image/jpeg": {},
		"image/png":  {},
		"image/webp": {},
	}}
	documentUpload = uploadPolicy{mimeTypes: map[string]struct{}{
		"image/jpeg":      {},
		"image/png":       {},
		"image/webp":      {},
		"application/pdf": {},
	}}
)

func (p uploadPolicy) allowed() string {
	list := make([]string, 0, len(p.mimeTypes))
	for m := range p.mimeTypes {
		list = append(list, m)
	}
	sort.Strings(list)
	return strings.Join(list, ", ")
}

// openUpload открывает файл из multipart формы и проверяет его реальный тип по магическим байтам.
// Вызывающий обязан вызвать close.
func openUpload(c *gin.Context, field string, policy uploadPolicy) (service.Upload, func(), error) {
	noop := func() {}

	header, err := c.FormFile(field)
	if err != nil {
		return service.Upload{}, noop, apperror.Validation("поле " + field + " обязательно")
	}
	if header.Size == 0 {
		return service.Upload{}, noop, apperror.Validation("файл не может быть пустым")
	}

	src, err := header.Open()
	if err != nil {
		return service.Upload{}, noop, apperror.Internal(err)
	}
	closeFn := func() { _ = src.Close() }

	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		closeFn()
		return service.Upload{}, noop, apperror.Validation("не удалось прочитать файл")
	}

	kind, err := filetype.Match(buffer[:n])
	if err != nil || kind == filetype.Unknown {
		closeFn()
		return service.Upload{}, noop, apperror.Validation("не удалось определить тип файла. Разрешены: " + policy.allowed())
	}
	if _, ok := policy.mimeTypes[kind.MIME.Value]; !ok {
		closeFn()
		return service.Upload{}, noop, apperror.Validation("неподдерживаемый тип файла (" + kind.MIME.Value + "). Разрешены: " + policy.allowed())
	}

	ext := normalizeExt(filepath.Ext(header.Filename))
	if ext != "" && ext != normalizeExt("."+kind.Extension) {
		closeFn()
		return service.Upload{}, noop, apperror.Validation("расширение файла (" + ext + ") не соответствует реальному типу (." + kind.Extension + ")")
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		closeFn()
		return service.Upload{}, noop, apperror.Internal(err)
	}

	return service.Upload{Filename: header.Filename, Reader: src}, closeFn, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext == ".jpeg" {
		return ".jpg"
	}
	return ext
}
