package bigfile

import "github.com/sir_venger/bigfile/pkg/contenthash"

// LocationOf отображает хеш в ключ хранилища h[0]/h[1:3]/h[3:6]/h.
// Шардирование ограничивает число записей в одном каталоге (16*256*4096 листьев).
// Хеш должен быть провалидирован contenthash.Parse.
func LocationOf(h contenthash.Hash) string {
	s := string(h)
	return s[0:1] + "/" + s[1:3] + "/" + s[3:6] + "/" + s
}
