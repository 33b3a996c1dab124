package textutil

// Jaccard returns the Jaccard similarity of the two strings' token sets.
func Jaccard(a, b string) float64 {
	setA := TokenSet(a)
	setB := TokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for token := range setB {
		if setA[token] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Coverage returns the fraction of query tokens that appear in the candidate.
// Unlike Jaccard it does not penalize extra candidate tokens, so a short query
// against a long event title still scores high when every query word is found.
func Coverage(query, candidate string) float64 {
	queryTokens := Tokens(query)
	if len(queryTokens) == 0 {
		return 0
	}
	candidateSet := TokenSet(candidate)
	found := 0
	for _, token := range queryTokens {
		if candidateSet[token] {
			found++
		}
	}
	return float64(found) / float64(len(queryTokens))
}

// Levenshtein returns the edit distance between two strings (runes).
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// StringSimilarity converts Levenshtein distance to a [0,1] similarity over
// the normalized forms of both strings.
func StringSimilarity(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" && nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	distance := Levenshtein(na, nb)
	similarity := 1 - float64(distance)/float64(longest)
	if similarity < 0 {
		return 0
	}
	return similarity
}

// TokenSimilarity scores how well each query token matches its best
// counterpart among the candidate tokens, averaged over the query tokens.
// Tolerates per-word typos that full-string Levenshtein would punish twice.
func TokenSimilarity(query, candidate string) float64 {
	queryTokens := Tokens(query)
	candidateTokens := Tokens(candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return 0
	}
	total := 0.0
	for _, qt := range queryTokens {
		best := 0.0
		for _, ct := range candidateTokens {
			if s := StringSimilarity(qt, ct); s > best {
				best = s
			}
		}
		total += best
	}
	return total / float64(len(queryTokens))
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
