package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	maxImageBytes = 2 << 20
	maxWidth      = 600
	maxHeight     = 200
	pngDataPrefix = "data:image/png;base64,"
)

var (
	// ErrInvalidImage возвращается, если подпись не является изображением в data URL.
	ErrInvalidImage = errors.New("invalid signature image")
	// ErrEmptySignature возвращается для пустого холста.
	ErrEmptySignature = errors.New("signature is empty")
)

// NormalizeDataURL декодирует нарисованную подпись, вписывает её в 600×200 на белом фоне
// и возвращает PNG в виде data URL.
func NormalizeDataURL(dataURL string) (string, error) {
	raw, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	fitted := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
	if !hasInk(fitted) {
		return "", ErrEmptySignature
	}

	bounds := fitted.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat := imaging.Overlay(canvas, fitted, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode signature: %w", err)
	}

	return pngDataPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeDataURL(dataURL string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimSpace(dataURL), ",")
	if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
		return nil, ErrInvalidImage
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes {
		return nil, fmt.Errorf("%w: too large", ErrInvalidImage)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return raw, nil
}

// hasInk сообщает, есть ли на изображении хотя бы один видимый не белый пиксель.
func hasInk(img *image.NRGBA) bool {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r, g, b, a := img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]
		if a > 16 && (r < 240 || g < 240 || b < 240) {
			return true
		}
	}
	return false
}
