package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/menu-scan/internal/config"
	"github.com/zombor/menu-scan/internal/scanning"
)

var _ = Describe("Extractor", func() {
	var (
		scanner *mockScanner
		cfg     config.Scanner
		images  []Image
		batch   Batch
	)

	imageFor := func(key string) Image {
		return Image{Filename: key + ".jpg", ContentType: "image/jpeg", Data: []byte(key)}
	}

	itemJSON := func(item string) string {
		return fmt.Sprintf(`[{"category":"Mains","item":%q,"price":"100"}]`, item)
	}

	BeforeEach(func() {
		scanner = newMockScanner()
		cfg = testScannerConfig()
		for _, key := range []string{"a", "b", "c"} {
			scanner.responses[key] = itemJSON("item " + key)
		}
		images = []Image{imageFor("a"), imageFor("b"), imageFor("c")}
	})

	JustBeforeEach(func() {
		batch = NewExtractor(scanner, cfg).Extract(context.Background(), "batch-1", images)
	})

	items := func(records []Record) []string {
		names := make([]string, 0, len(records))
		for _, r := range records {
			names = append(names, r.Item)
		}
		return names
	}

	When("every call succeeds", func() {
		BeforeEach(func() {
			// finish out of order
			scanner.delays["a"] = 60 * time.Millisecond
			scanner.delays["b"] = 30 * time.Millisecond
		})

		It("concatenates records in image order", func() {
			Expect(items(batch.Records)).To(Equal([]string{"item a", "item b", "item c"}))
		})

		It("reports one result per image", func() {
			Expect(batch.ID).To(Equal("batch-1"))
			Expect(batch.Images).To(HaveLen(3))
			Expect(batch.Images[0].Filename).To(Equal("a.jpg"))
			for _, r := range batch.Images {
				Expect(r.Records).To(Equal(1))
				Expect(r.Error).To(BeEmpty())
			}
		})
	})

	When("the second call fails", func() {
		BeforeEach(func() {
			scanner.errs["b"] = errors.New("model unavailable")
		})

		It("keeps the records of the other images", func() {
			Expect(items(batch.Records)).To(Equal([]string{"item a", "item c"}))
		})

		It("reports the failure on that image", func() {
			Expect(batch.Images[1].Records).To(BeZero())
			Expect(batch.Images[1].Error).To(ContainSubstring("model unavailable"))
		})
	})

	When("the second call times out", func() {
		BeforeEach(func() {
			cfg.Timeout = 50 * time.Millisecond
			scanner.delays["b"] = time.Second
		})

		It("keeps the records of the other images", func() {
			Expect(items(batch.Records)).To(Equal([]string{"item a", "item c"}))
			Expect(batch.Images[1].Error).To(ContainSubstring("deadline exceeded"))
		})
	})

	When("a response is not a menu array", func() {
		BeforeEach(func() {
			scanner.responses["c"] = "Sorry, no menu here."
		})

		It("contributes no records for that image", func() {
			Expect(items(batch.Records)).To(Equal([]string{"item a", "item b"}))
			Expect(batch.Images[2].Error).To(ContainSubstring(scanning.ErrNoArray.Error()))
		})
	})

	When("a response has incomplete entries", func() {
		BeforeEach(func() {
			scanner.responses["a"] = `[{"item":"Tea","price":"20"},{"item":"Soup"}]`
		})

		It("counts the dropped entries", func() {
			Expect(batch.Images[0].Records).To(Equal(1))
			Expect(batch.Images[0].Dropped).To(Equal(1))
			Expect(batch.Records[0]).To(Equal(Record{Category: scanning.UnknownCategory, Item: "Tea", Price: "20"}))
		})
	})

	When("concurrency is limited", func() {
		BeforeEach(func() {
			cfg.Concurrency = 1
			for _, key := range []string{"a", "b", "c"} {
				scanner.delays[key] = 10 * time.Millisecond
			}
		})

		It("never runs more calls at once", func() {
			Expect(scanner.maxActive).To(Equal(1))
			Expect(batch.Records).To(HaveLen(3))
		})
	})

	When("retries are enabled", func() {
		BeforeEach(func() {
			cfg.Attempts = 3
			cfg.RetryDelay = time.Millisecond
			scanner.errs["a"] = errors.New("temporarily overloaded")
		})

		It("retries a failing call up to the attempt limit", func() {
			Expect(scanner.callCount("a")).To(Equal(3))
			Expect(scanner.callCount("b")).To(Equal(1))
			Expect(batch.Images[0].Error).To(ContainSubstring("temporarily overloaded"))
		})

		Context("and the image is unsupported", func() {
			BeforeEach(func() {
				scanner.errs["a"] = fmt.Errorf("%w: image/tiff", scanning.ErrUnsupportedImage)
			})

			It("does not retry", func() {
				Expect(scanner.callCount("a")).To(Equal(1))
			})
		})
	})

	When("there are no images", func() {
		BeforeEach(func() {
			images = nil
		})

		It("returns an empty batch", func() {
			Expect(batch.Records).To(BeEmpty())
			Expect(batch.Images).To(BeEmpty())
		})
	})
})
