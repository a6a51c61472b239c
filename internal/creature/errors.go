package creature

import "errors"

var (
	// ErrUnknownEntity - дескриптор не указывает на живую запись (удалена или устарело поколение)
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrInvalidSpecies - описание вида противоречиво или неполно
	ErrInvalidSpecies = errors.New("invalid species")
	// ErrUnknownSpecies - вид не зарегистрирован в мире
	ErrUnknownSpecies = errors.New("unknown species")
	// ErrDuplicateSpecies - вид с таким именем уже зарегистрирован
	ErrDuplicateSpecies = errors.New("duplicate species")
)
