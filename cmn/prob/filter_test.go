package prob_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ripc-core/rtmd/cmn/prob"
)

var _ = Describe("Filter", func() {
	It("finds what it inserted", func() {
		f := prob.NewFilter(1024)
		Expect(f.Insert(42)).To(BeTrue())
		Expect(f.Lookup(42)).To(BeTrue())
		Expect(f.Lookup(43)).To(BeFalse())
	})

	It("forgets what it deleted", func() {
		f := prob.NewFilter(1024)
		f.Insert(7)
		Expect(f.Delete(7)).To(BeTrue())
		Expect(f.Lookup(7)).To(BeFalse())
	})

	It("tracks count across insert/delete", func() {
		f := prob.NewFilter(1024)
		f.Insert(1)
		f.Insert(2)
		Expect(f.Count()).To(BeNumerically("==", 2))
		f.Delete(1)
		Expect(f.Count()).To(BeNumerically("==", 1))
	})
})
