package uuid

import gonanoid "github.com/matoous/go-nanoid"

// Alphabet characters used in generated IDs, kept URL and case-insensitive collation safe
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generator UUID generator interface
type Generator interface {
	Generate() (string, error)
}

// NanoIDGenerator UUID implementation using NanoID
type NanoIDGenerator struct {
	Length int
}

var _ Generator = &NanoIDGenerator{}

// NewNanoIDGenerator create a new `NanoIDGenerator` instance
func NewNanoIDGenerator(length int) *NanoIDGenerator {
	if length < 1 {
		panic("length must be larger than 1")
	}
	return &NanoIDGenerator{Length: length}
}

// Generate generate UUID
func (ns *NanoIDGenerator) Generate() (string, error) {
	return gonanoid.Generate(Alphabet, ns.Length)
}
