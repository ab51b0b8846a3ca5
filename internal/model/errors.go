package model

import "errors"

var (
	ErrDuplicatePair     = errors.New("duplicate pair")
	ErrUnknownPair       = errors.New("unknown pair")
	ErrInvalidPair       = errors.New("invalid pair")
	ErrEvaluationSkipped = errors.New("evaluation skipped: not enough distinct quotes")
)
