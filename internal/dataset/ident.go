package dataset

// sanitizeIdent turns an arbitrary signal key (which may contain slashes or
// other punctuation, e.g. "concept_score/my_concept") into a safe SQL
// identifier: every character outside [a-zA-Z0-9_] becomes '_', and a
// leading digit is prefixed.
func sanitizeIdent(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			b[i] = '_'
		}
	}
	if len(b) == 0 || (b[0] >= '0' && b[0] <= '9') {
		b = append([]byte{'_'}, b...)
	}
	return string(b)
}
