// Package contenthash описывает адресацию по содержимому: MD5-дайджесты чанков
// и идентификатор склейки, вычисляемый по упорядоченному списку хешей.
// Пакет используется и сервером, и клиентом, поэтому клиент может посчитать
// fileId самостоятельно, не дожидаясь ответа на merge.
package contenthash

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sir_venger/bigfile/internal/models"
)

// Size: длина hex-представления дайджеста.
const Size = md5.Size * 2

// Empty: дайджест пустой последовательности байт.
const Empty Hash = "d41d8cd98f00b204e9800998ecf8427e"

// Hash: hex-строка MD5-дайджеста в нижнем регистре.
type Hash string

func (h Hash) String() string {
	return string(h)
}

// Parse проверяет строку и возвращает её как Hash.
// Верхний регистр не нормализуется: составной идентификатор считается по
// строкам как есть, и клиент должен получить тот же результат.
func Parse(s string) (Hash, error) {
	if len(s) != Size {
		return "", fmt.Errorf("%w: want %d hex chars, got %d", models.ErrInvalidHash, Size, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: unexpected character %q at %d", models.ErrInvalidHash, c, i)
		}
	}

	return Hash(s), nil
}

// Digest вычисляет дайджест всего потока.
func Digest(r io.Reader) (Hash, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	return Hash(hex.EncodeToString(h.Sum(nil))), nil
}

// DigestBytes: Digest для данных в памяти.
func DigestBytes(b []byte) Hash {
	sum := md5.Sum(b)
	return Hash(hex.EncodeToString(sum[:]))
}

// Verify перечитывает поток и сравнивает дайджест с заявленным.
// Несовпадение даёт false, а не ошибка; ошибка означает сбой чтения.
func Verify(r io.Reader, claimed Hash) (bool, error) {
	got, err := Digest(r)
	if err != nil {
		return false, err
	}

	return got == claimed, nil
}

// Sequence: упорядоченный список хешей чанков для склейки.
type Sequence []Hash

// ParseSequence валидирует каждый элемент списка.
func ParseSequence(raw []string) (Sequence, error) {
	seq := make(Sequence, 0, len(raw))
	for i, s := range raw {
		h, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("chunk #%d: %w", i, err)
		}
		seq = append(seq, h)
	}

	return seq, nil
}

// UnmarshalJSON принимает JSON-массив строк. Один невалидный хеш отклоняет
// всю последовательность; ошибка называет индекс элемента.
func (s *Sequence) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	seq, err := ParseSequence(raw)
	if err != nil {
		return err
	}
	*s = seq

	return nil
}

// Composite возвращает идентификатор склейки: дайджест конкатенации строк
// хешей (а не байтов чанков) в заданном порядке.
func Composite(seq Sequence) Hash {
	h := md5.New()
	for _, c := range seq {
		_, _ = io.WriteString(h, string(c))
	}

	return Hash(hex.EncodeToString(h.Sum(nil)))
}
