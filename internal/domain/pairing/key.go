// Package pairing генерирует короткие ключи комнат, по которым два клиента находят друг друга
// без центрального матчера.
package pairing

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
)

const (
	KeyLength = 6
	alphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"

	// maxByte отсекает хвост байтового диапазона, чтобы символы распределялись равномерно
	maxByte = 256 - (256 % len(alphabet))
)

var validKey = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

type Generator struct {
	src io.Reader
}

// NewGenerator создает генератор поверх источника случайности. nil - crypto/rand.
func NewGenerator(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}

	return &Generator{src: src}
}

// Key возвращает новый ключ из KeyLength символов base36.
func (g *Generator) Key() (string, error) {
	key := make([]byte, 0, KeyLength)
	buf := make([]byte, KeyLength*2)

	for len(key) < KeyLength {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}

		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}

			key = append(key, alphabet[int(b)%len(alphabet)])
			if len(key) == KeyLength {
				break
			}
		}
	}

	return string(key), nil
}

var defaultGenerator = NewGenerator(nil)

// NewKey генерирует ключ из crypto/rand. crypto/rand не возвращает ошибок на поддерживаемых платформах.
func NewKey() string {
	key, err := defaultGenerator.Key()
	if err != nil {
		panic(err)
	}

	return key
}

// Valid проверяет ключ, пришедший извне (URL, флаг CLI).
func Valid(key string) bool {
	return validKey.MatchString(key)
}
