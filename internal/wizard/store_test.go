package wizard

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vansh1056/ScanAndPay/internal/camera"
	"github.com/vansh1056/ScanAndPay/internal/document"
)

var _ = Describe("Store", func() {
	var (
		storage *memStorage
		ttl     time.Duration
		store   *Store
	)

	BeforeEach(func() {
		storage = newMemStorage()
		ttl = time.Minute
	})

	JustBeforeEach(func() {
		store = NewStoreWithDeps(ttl, func(id string) *Session {
			return NewSession(id, Config{}, Deps{
				Camera:    camera.NewAdapter(&mockProvider{}),
				Decoder:   &mockDecoder{hitAfter: -1},
				Staging:   document.NewStaging(storage, mockCounter{}, 2),
				Submitter: &mockSubmitter{},
			})
		}, &mockIDGenerator{})
	})

	AfterEach(func() {
		store.Close()
	})

	It("creates sessions with fresh IDs", func() {
		a := store.Create()
		b := store.Create()
		Expect(a.ID()).To(Equal("id1"))
		Expect(b.ID()).To(Equal("id2"))
		Expect(store.Len()).To(Equal(2))
	})

	It("returns a stored session", func() {
		created := store.Create()
		got, ok := store.Get(created.ID())
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(created))
	})

	It("reports unknown sessions", func() {
		_, ok := store.Get("missing")
		Expect(ok).To(BeFalse())
		Expect(store.Delete("missing")).To(BeFalse())
	})

	When("a session is deleted", func() {
		It("closes it and deletes its payloads", func() {
			s := store.Create()
			_, err := s.Stage("a.pdf", "application/pdf", []byte("pages:1"))
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Delete(s.ID())).To(BeTrue())

			_, ok := store.Get(s.ID())
			Expect(ok).To(BeFalse())
			Expect(storage.count()).To(Equal(0))
			Expect(s.Reset()).To(MatchError(ErrSessionClosed))
		})
	})

	When("a session expires", func() {
		BeforeEach(func() {
			ttl = 20 * time.Millisecond
		})

		It("is closed by the janitor", func() {
			s := store.Create()
			Eventually(func() error { return s.Reset() }).Should(MatchError(ErrSessionClosed))
			_, ok := store.Get(s.ID())
			Expect(ok).To(BeFalse())
		})
	})

	When("the store is closed", func() {
		It("closes every session", func() {
			a := store.Create()
			b := store.Create()
			store.Close()
			Expect(a.Reset()).To(MatchError(ErrSessionClosed))
			Expect(b.Reset()).To(MatchError(ErrSessionClosed))
			Expect(store.Len()).To(Equal(0))
		})
	})
})
