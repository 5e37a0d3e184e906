package checkpoint

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// 任意写入序列下，已提交的链始终是 0..n 的连续序列
func TestMemoryStore_ChainIsContiguous(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("accepted writes form a gapless chain", prop.ForAll(
		func(attempts []int64) bool {
			ctx := context.Background()
			s := NewMemoryStore()
			expected := int64(0)
			for _, seq := range attempts {
				err := s.Write(ctx, rec("p", seq, "ROUTE"))
				if (err == nil) != (seq == expected) {
					return false
				}
				if err == nil {
					expected++
				}
			}
			chain, err := s.List(ctx, "p")
			if err != nil || int64(len(chain)) != expected {
				return false
			}
			for i, r := range chain {
				if r.Seq != int64(i) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(-1, 6)),
	))

	properties.TestingRun(t)
}
