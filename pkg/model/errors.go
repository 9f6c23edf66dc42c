package model

import "errors"

var (
	ErrNoPrimary        = errors.New("model must have a primary index")
	ErrMultiplePrimary  = errors.New("model declares more than one primary index")
	ErrDuplicateField   = errors.New("duplicate field name")
	ErrDuplicateIndex   = errors.New("duplicate index name")
	ErrUnknownField     = errors.New("unknown field")
	ErrEmptyIndex       = errors.New("index has no fields")
	ErrInvalidRelation  = errors.New("invalid relation")
	ErrInvalidFieldType = errors.New("field has no type")
	ErrEmptyName        = errors.New("name is empty")
)
