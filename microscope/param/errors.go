package param

import "errors"

// Sentinel errors a Translator maps onto wire.RepParameterNotSupported /
// wire.RepParameterError (spec §4.6, §7).
var (
	// ErrNotSupported means the generic parameter has no descriptor.
	ErrNotSupported = errors.New("param: parameter not supported")
	// ErrConfiguration is returned by SetParams when names, values and
	// units differ in length. Registration does not check descriptors, so
	// a name with neither a descriptor nor an override gives ErrNotSupported.
	ErrConfiguration = errors.New("param: descriptor misconfigured")
	// ErrConversion means a value could not be typified or unit-converted.
	ErrConversion = errors.New("param: conversion failed")
	// ErrParameter means the underlying instrument rejected a get/set.
	ErrParameter = errors.New("param: microscope parameter error")
)
