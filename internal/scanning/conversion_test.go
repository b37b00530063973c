package scanning

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 100, A: 255})
		}
	}
	return img
}

func testPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func testJPEG() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

// testWEBP is a 1x1 lossless WEBP
func testWEBP() []byte {
	data, err := base64.StdEncoding.DecodeString("UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA==")
	Expect(err).NotTo(HaveOccurred())
	return data
}

func expectPNG(data []byte) {
	_, format, err := image.Decode(bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	Expect(format).To(Equal("png"))
}

var _ = Describe("prepareImageData", func() {
	var (
		data        []byte
		contentType string
		native      []string
		out         []byte
		mimeType    string
		err         error
	)

	BeforeEach(func() {
		native = ollamaImageTypes
	})

	JustBeforeEach(func() {
		out, mimeType, err = prepareImageData(data, contentType, native)
	})

	When("the upload is already PNG", func() {
		BeforeEach(func() {
			data = testPNG()
			contentType = "image/png"
		})

		It("should pass the bytes through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("the upload is JPEG", func() {
		BeforeEach(func() {
			data = testJPEG()
			contentType = "image/jpeg"
		})

		It("should pass the bytes through with their type", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
			Expect(mimeType).To(Equal("image/jpeg"))
		})

		Context("and the model only takes PNG", func() {
			BeforeEach(func() {
				native = []string{"image/png"}
			})

			It("should convert it to PNG", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(mimeType).To(Equal("image/png"))
				expectPNG(out)
			})
		})
	})

	When("the upload is WEBP", func() {
		BeforeEach(func() {
			data = testWEBP()
			contentType = "image/webp"
		})

		Context("and the model takes WEBP", func() {
			BeforeEach(func() {
				native = geminiImageTypes
			})

			It("should pass the bytes through with their type", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(out).To(Equal(data))
				Expect(mimeType).To(Equal("image/webp"))
			})
		})

		Context("and the model does not take WEBP", func() {
			It("should decode it and convert it to PNG", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(mimeType).To(Equal("image/png"))
				expectPNG(out)
			})
		})
	})

	When("the declared type does not match the data", func() {
		BeforeEach(func() {
			data = testJPEG()
			contentType = "image/png"
		})

		It("should convert the data instead of passing it through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
			expectPNG(out)
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			data = testJPEG()
			contentType = ""
		})

		It("should sniff the data", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/jpeg"))
		})
	})

	When("the data is not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not an image")
			contentType = "image/jpeg"
		})

		It("returns an unsupported image error", func() {
			Expect(err).To(MatchError(ErrUnsupportedImage))
		})
	})

	When("the upload is empty", func() {
		BeforeEach(func() {
			data = nil
			contentType = "image/png"
		})

		It("returns an unsupported image error", func() {
			Expect(err).To(MatchError(ErrUnsupportedImage))
		})
	})
})

var _ = Describe("normalizeMimeType", func() {
	It("should strip parameters and lowercase", func() {
		Expect(normalizeMimeType(nil, "Image/JPEG; charset=binary")).To(Equal("image/jpeg"))
	})

	It("should detect HEIC by its ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(normalizeMimeType(data, "application/octet-stream")).To(Equal("image/heic"))
	})
})
