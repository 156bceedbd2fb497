package models

// PutResult: исход успешной записи чанка.
type PutResult int

const (
	// PutCreated: чанк записан этим вызовом.
	PutCreated PutResult = iota + 1
	// PutAlreadyExists: чанк уже лежал в хранилище, поток не читался.
	PutAlreadyExists
)

func (r PutResult) String() string {
	switch r {
	case PutCreated:
		return "created"
	case PutAlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}
