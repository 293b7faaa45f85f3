package textnorm

// defaultStopwords 英文功能词和常见韩语虚词/副词，均为小写
var defaultStopwords = []string{
	// English
	"a", "about", "all", "also", "am", "an", "and", "any", "are", "as", "at",
	"be", "been", "but", "by", "can", "could", "did", "do", "does", "for",
	"from", "had", "has", "have", "he", "her", "him", "his", "how", "i", "if",
	"in", "into", "is", "it", "its", "just", "me", "more", "my", "no", "not",
	"of", "on", "or", "our", "she", "so", "some", "such", "than", "that",
	"the", "their", "them", "then", "there", "these", "they", "this", "to",
	"too", "very", "was", "we", "were", "what", "when", "which", "who", "why",
	"will", "with", "would", "you", "your",
	// 한국어
	"그리고", "그런데", "그래서", "하지만", "그러나", "그냥", "정말", "진짜",
	"너무", "아주", "매우", "조금", "좀", "많이", "계속", "다시", "이거",
	"그거", "저거", "이것", "그것", "저것", "여기", "거기", "저기", "우리",
	"저희", "있어요", "없어요", "합니다", "입니다", "있습니다", "없습니다",
	"해요", "했어요", "하는", "하고", "해서", "있는", "없는", "같아요",
}

// koreanParticles 词尾助词，长的在前以便优先匹配
var koreanParticles = []string{
	"에서", "으로", "라도", "부터", "까지",
	"은", "는", "이", "가", "을", "를", "의", "에", "로", "와", "과", "도", "만",
}

func stopwordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
