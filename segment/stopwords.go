package segment

var stopwords = makeSet(
	"的", "了", "在", "是", "我", "有", "和", "就", "不", "人",
	"都", "一", "一个", "上", "也", "很", "到", "说", "要", "去",
	"你", "会", "着", "没有", "看", "好", "自己", "这", "那", "里",
	"就是", "还", "把", "比", "或者", "虽然", "因为", "所以", "但是", "如果",
	"这样", "那样", "怎么", "什么", "哪里", "为什么", "怎样", "多少", "第一", "可以",
	"应该", "能够", "已经", "正在", "将要",
)

// IsStopword reports whether word is a common function word that never
// makes a useful keyword.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

func makeSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
