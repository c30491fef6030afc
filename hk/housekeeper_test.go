package hk_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ripc-core/rtmd/hk"
)

var _ = Describe("Housekeeper", func() {
	It("fires a registered callback", func() {
		fired := make(chan struct{}, 4)
		hk.Reg("probe", func() time.Duration {
			fired <- struct{}{}
			return 0 // run once
		}, time.Millisecond)

		Eventually(fired, time.Second).Should(Receive())
	})

	It("stops firing once unregistered", func() {
		calls := 0
		hk.Reg("cancelme", func() time.Duration {
			calls++
			return time.Millisecond
		}, time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		hk.Unreg("cancelme")
		before := calls
		time.Sleep(20 * time.Millisecond)
		Expect(calls).To(BeNumerically("<=", before+1))
	})
})
