package cache

import (
	"strconv"
	"strings"

	"SemHub/pkg/util"
)

// 缓存 key 是内容寻址的：对语义操作数做稳定哈希，而不是对象标识。
// 前缀标识操作类别，便于排障与按类失效。

func KeyEmbedding(model, text string) string {
	return "emb_" + util.Sha256Hex(model+"|"+text)
}

func KeyQueryEmbedding(model, text string) string {
	return "qemb_" + util.Sha256Hex(model+"|"+text)
}

func KeySearch(collection string, vectorHash string, topK int, scoreThreshold float32) string {
	raw := collection + "|" + vectorHash + "|" + strconv.Itoa(topK) + "|" +
		strconv.FormatFloat(float64(scoreThreshold), 'f', 4, 32)
	return "srch_" + util.Sha256Hex(raw)
}

// HashVector 对向量做定点编码后哈希。
// 浮点序列化必须确定：固定 6 位小数，避免格式化差异产生不同 key。
func HashVector(vec []float64) string {
	var b strings.Builder
	b.Grow(len(vec) * 10)
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
	}
	return util.Sha256Hex(b.String())
}
