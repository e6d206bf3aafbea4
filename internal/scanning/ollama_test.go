package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		ghttpServer *ghttp.Server
		recognizer  *Ollama
		sent        ollamaChatRequest
	)

	BeforeEach(func() {
		ghttpServer = ghttp.NewServer()
		var err error
		recognizer, err = NewOllama(ghttpServer.URL()+"/", "llava", time.Second)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	It("should send the image on the user message", func() {
		ghttpServer.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/api/chat"),
			func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				body, err := io.ReadAll(r.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(json.Unmarshal(body, &sent)).To(Succeed())
			},
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": "STORE A\nTOTAL 1.00"},
				"done":    true,
			}),
		))

		text, err := recognizer.Recognize(context.Background(), []byte("png-bytes"))
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("STORE A\nTOTAL 1.00"))
		Expect(sent.Messages).To(HaveLen(1))
		Expect(sent.Messages[0].Images).To(Equal([]string{base64.StdEncoding.EncodeToString([]byte("png-bytes"))}))
		Expect(sent.Stream).To(BeFalse())
	})

	It("should report API errors", func() {
		ghttpServer.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, "model not found"))

		_, err := recognizer.Recognize(context.Background(), []byte("png-bytes"))
		Expect(err).To(MatchError(ContainSubstring("status 404")))
	})
})
