package snn

import (
	"errors"

	"github.com/Wyndegarde/Maters-Project/tensor"
	"github.com/Wyndegarde/Maters-Project/utils"
)

var (
	// ErrInvalidArchitecture reports a configuration whose geometry collapses
	// or grows a spatial size. It is raised at construction time.
	ErrInvalidArchitecture = errors.New("invalid architecture")

	// ErrShapeMismatch is tensor.ErrShapeMismatch, re-exported so callers of
	// this package can match it without importing tensor.
	ErrShapeMismatch = tensor.ErrShapeMismatch

	// ErrInvalidConfig is utils.ErrInvalidConfig: a hyperparameter such as
	// beta, dropout or batch size is out of range.
	ErrInvalidConfig = utils.ErrInvalidConfig

	ErrSurrogateNotFound = errors.New("surrogate not found")
	ErrSurrogateExists   = errors.New("surrogate already registered")
)
