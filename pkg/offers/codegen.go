package offers

import (
	"math/rand"
	"strings"
)

// codeCharset deliberately omits I and O, which misread on thermal
// print.
const codeCharset = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// CodePrefix is the fixed prefix of generated discount codes.
const CodePrefix = "PZ"

const codeSuffixLen = 4

// generateCode produces a prefixed random discount code such as PZ7K2M.
func generateCode(rng *rand.Rand) string {
	var b strings.Builder
	b.WriteString(CodePrefix)
	for i := 0; i < codeSuffixLen; i++ {
		b.WriteByte(codeCharset[rng.Intn(len(codeCharset))])
	}
	return b.String()
}
