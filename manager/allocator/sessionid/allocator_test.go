package sessionid_test

import (
	. "github.com/moby/tapkit/manager/allocator/sessionid"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"context"
	"fmt"
	"sync"

	"github.com/moby/tapkit/api"
	"github.com/moby/tapkit/errdefs"
	"github.com/moby/tapkit/manager/state/store"
)

var _ = Describe("sessionid.Allocator", func() {
	var (
		s   *store.MemoryStore
		a   *Allocator
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = store.NewMemoryStore()
		var err error
		a, err = New(s, DefaultRangeStart, DefaultRangeEnd)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		s.Close()
	})

	Describe("creating an allocator", func() {
		It("should reject an empty range", func() {
			_, err := New(s, 10, 10)
			Expect(err).To(HaveOccurred())
			Expect(errdefs.IsInvalidArgument(err)).To(BeTrue())
		})
		It("should reject a range past the last VLAN id", func() {
			_, err := New(s, 4000, 4096)
			Expect(err).To(HaveOccurred())
		})
		It("should reject identifier zero", func() {
			_, err := New(s, 0, 10)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("acquiring an identifier", func() {
		Context("from an empty store", func() {
			var (
				id  uint32
				err error
			)
			BeforeEach(func() {
				id, err = a.AcquireID(ctx, "ts1")
			})
			It("should succeed", func() {
				Expect(err).ToNot(HaveOccurred())
			})
			It("should return an identifier inside the range", func() {
				Expect(id).To(BeNumerically(">=", DefaultRangeStart))
				Expect(id).To(BeNumerically("<", DefaultRangeEnd))
			})
			It("should record the binding in the store", func() {
				s.View(func(tx store.ReadTx) {
					assoc := store.GetTapIDAssociation(tx, id)
					Expect(assoc).ToNot(BeNil())
					Expect(assoc.TapServiceID).To(Equal("ts1"))
				})
			})
			It("should fill the pool with free rows", func() {
				free, bound := a.Stats()
				Expect(bound).To(Equal(1))
				Expect(free).To(Equal(DefaultRangeEnd - DefaultRangeStart - 1))
				s.View(func(tx store.ReadTx) {
					rows, err := store.FindTapIDAssociations(tx, store.Free)
					Expect(err).ToNot(HaveOccurred())
					Expect(rows).To(HaveLen(DefaultRangeEnd - DefaultRangeStart - 1))
				})
			})
			It("should be idempotent for the same owner", func() {
				again, err := a.AcquireID(ctx, "ts1")
				Expect(err).ToNot(HaveOccurred())
				Expect(again).To(Equal(id))
			})
			It("should be found by Lookup", func() {
				s.View(func(tx store.ReadTx) {
					found, ok := a.Lookup(tx, "ts1")
					Expect(ok).To(BeTrue())
					Expect(found).To(Equal(id))
					_, ok = a.Lookup(tx, "ts2")
					Expect(ok).To(BeFalse())
				})
			})
		})

		Context("without an owner", func() {
			It("should fail", func() {
				_, err := a.AcquireID(ctx, "")
				Expect(errdefs.IsInvalidArgument(err)).To(BeTrue())
			})
		})

		Context("from a range of two identifiers", func() {
			BeforeEach(func() {
				Expect(a.SetRange(1, 3)).To(Succeed())
			})
			It("should hand out both and then report exhaustion", func() {
				first, err := a.AcquireID(ctx, "ts1")
				Expect(err).ToNot(HaveOccurred())
				second, err := a.AcquireID(ctx, "ts2")
				Expect(err).ToNot(HaveOccurred())
				Expect([]uint32{first, second}).To(ConsistOf(uint32(1), uint32(2)))

				_, err = a.AcquireID(ctx, "ts3")
				Expect(err).To(HaveOccurred())
				Expect(errdefs.IsResourceExhausted(err)).To(BeTrue())
			})
			It("should reuse a released identifier", func() {
				first, err := a.AcquireID(ctx, "ts1")
				Expect(err).ToNot(HaveOccurred())
				_, err = a.AcquireID(ctx, "ts2")
				Expect(err).ToNot(HaveOccurred())

				Expect(a.ReleaseID(ctx, "ts1")).To(Succeed())

				third, err := a.AcquireID(ctx, "ts3")
				Expect(err).ToNot(HaveOccurred())
				Expect(third).To(Equal(first))
			})
			It("should leave the store untouched when exhausted", func() {
				_, err := a.AcquireID(ctx, "ts1")
				Expect(err).ToNot(HaveOccurred())
				_, err = a.AcquireID(ctx, "ts2")
				Expect(err).ToNot(HaveOccurred())
				_, err = a.AcquireID(ctx, "ts3")
				Expect(err).To(HaveOccurred())
				s.View(func(tx store.ReadTx) {
					_, ok := a.Lookup(tx, "ts3")
					Expect(ok).To(BeFalse())
				})
			})
		})

		Context("concurrently", func() {
			It("should never hand out the same identifier twice", func() {
				const workers = 50
				var (
					wg  sync.WaitGroup
					mu  sync.Mutex
					ids = map[uint32]string{}
				)
				for i := 0; i < workers; i++ {
					wg.Add(1)
					go func(i int) {
						defer GinkgoRecover()
						defer wg.Done()
						owner := fmt.Sprintf("ts%d", i)
						id, err := a.AcquireID(ctx, owner)
						Expect(err).ToNot(HaveOccurred())
						mu.Lock()
						defer mu.Unlock()
						_, dup := ids[id]
						Expect(dup).To(BeFalse(), "identifier %d handed out twice", id)
						ids[id] = owner
					}(i)
				}
				wg.Wait()
				Expect(ids).To(HaveLen(workers))
			})
			It("should exhaust a small range exactly once per identifier", func() {
				Expect(a.SetRange(100, 110)).To(Succeed())
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					succeeded int
					exhausted int
				)
				for i := 0; i < 25; i++ {
					wg.Add(1)
					go func(i int) {
						defer GinkgoRecover()
						defer wg.Done()
						_, err := a.AcquireID(ctx, fmt.Sprintf("ts%d", i))
						mu.Lock()
						defer mu.Unlock()
						if err != nil {
							Expect(errdefs.IsResourceExhausted(err)).To(BeTrue())
							exhausted++
							return
						}
						succeeded++
					}(i)
				}
				wg.Wait()
				Expect(succeeded).To(Equal(10))
				Expect(exhausted).To(Equal(15))
			})
		})
	})

	Describe("releasing an identifier", func() {
		It("should not fail for an owner holding nothing", func() {
			Expect(a.ReleaseID(ctx, "unknown")).To(Succeed())
		})
		It("should drop identifiers outside the current range", func() {
			id, err := a.AcquireID(ctx, "ts1")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.SetRange(10, 20)).To(Succeed())
			Expect(a.ReleaseID(ctx, "ts1")).To(Succeed())
			s.View(func(tx store.ReadTx) {
				Expect(store.GetTapIDAssociation(tx, id)).To(BeNil())
			})
		})
	})

	Describe("changing the range", func() {
		It("should drop free rows outside the new range on rebuild", func() {
			_, err := a.AcquireID(ctx, "ts1")
			Expect(err).ToNot(HaveOccurred())

			Expect(a.SetRange(10, 12)).To(Succeed())
			id, err := a.AcquireID(ctx, "ts2")
			Expect(err).ToNot(HaveOccurred())
			Expect(id).To(BeNumerically(">=", 10))
			Expect(id).To(BeNumerically("<", 12))

			s.View(func(tx store.ReadTx) {
				free, err := store.FindTapIDAssociations(tx, store.Free)
				Expect(err).ToNot(HaveOccurred())
				for _, assoc := range free {
					Expect(assoc.TaasID).To(BeNumerically(">=", 10))
					Expect(assoc.TaasID).To(BeNumerically("<", 12))
				}
			})
		})
		It("should keep bound identifiers outside the new range", func() {
			id, err := a.AcquireID(ctx, "ts1")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.SetRange(10, 12)).To(Succeed())
			_, err = a.AcquireID(ctx, "ts2")
			Expect(err).ToNot(HaveOccurred())
			s.View(func(tx store.ReadTx) {
				assoc := store.GetTapIDAssociation(tx, id)
				Expect(assoc).ToNot(BeNil())
				Expect(assoc.TapServiceID).To(Equal("ts1"))
			})
		})
	})

	Describe("within a caller's transaction", func() {
		It("should roll back the binding when the transaction aborts", func() {
			err := s.Update(func(tx store.Tx) error {
				_, err := a.Acquire(tx, "ts1")
				Expect(err).ToNot(HaveOccurred())
				Expect(store.CreateTapService(tx, &api.TapService{ID: "ts1"})).To(Succeed())
				return fmt.Errorf("abort")
			})
			Expect(err).To(HaveOccurred())
			s.View(func(tx store.ReadTx) {
				_, ok := a.Lookup(tx, "ts1")
				Expect(ok).To(BeFalse())
			})
		})
	})
})
