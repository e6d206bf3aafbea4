package receipt

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receiptly/internal/interpret"
	"github.com/zombor/receiptly/internal/llm"
	"github.com/zombor/receiptly/internal/scanning"
	"github.com/zombor/receiptly/internal/summary"
)

var _ = ginkgo.Describe("Server", func() {
	var (
		history     *mockHistory
		reader      *mockReader
		storage     *mockStorage
		interpreter *mockInterpreter
		summarizer  *mockSummarizer
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	ginkgo.BeforeEach(func() {
		history = newMockHistory(
			&Receipt{ID: "r1", Vendor: "Cafe", Date: "2025-02-01", Total: 10, Category: CategoryRestaurants},
			&Receipt{ID: "r2", Vendor: "Market", Date: "2025-03-01", Total: 20, Category: CategoryGroceries},
		)
		reader = &mockReader{text: "STORE A\nTOTAL 5.00"}
		storage = newMockStorage()
		interpreter = &mockInterpreter{result: &interpret.InterpretedReceipt{Vendor: "STORE A", Total: 5, Date: "2025-03-01", Confidence: 0.9}}
		summarizer = &mockSummarizer{text: "Nice."}
		auth = BasicAuth{}
		ghttpServer = ghttp.NewServer()
	})

	ginkgo.AfterEach(func() {
		ghttpServer.Close()
	})

	// do sends one request through a freshly built server
	do := func(method, path string, body io.Reader, contentType string) (*http.Response, []byte) {
		service := newTestService(history, reader, storage, interpreter, summarizer)
		server := NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer.AppendHandlers(server.ServeHTTP)

		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, data
	}

	doJSON := func(method, path string, v interface{}) (*http.Response, []byte) {
		payload, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return do(method, path, bytes.NewReader(payload), "application/json")
	}

	upload := func(path, filename string, data []byte) (*http.Response, []byte) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		return do("POST", path, &buf, w.FormDataContentType())
	}

	decode := func(data []byte) map[string]interface{} {
		var out map[string]interface{}
		Expect(json.Unmarshal(data, &out)).To(Succeed())
		return out
	}

	ginkgo.Describe("handleIndex", func() {
		ginkgo.It("should serve the HTML interface", func() {
			resp, body := do("GET", "/", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("text/html"))
			Expect(string(body)).To(ContainSubstring("Receiptly"))
		})

		ginkgo.It("should reject other methods", func() {
			resp, _ := do("POST", "/", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})
	})

	ginkgo.Describe("CORS", func() {
		ginkgo.It("should answer preflight requests", func() {
			resp, _ := do("OPTIONS", "/api/interpret", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	ginkgo.Describe("authentication", func() {
		ginkgo.BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
		})

		ginkgo.It("should reject requests without credentials", func() {
			resp, _ := do("GET", "/api/receipts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		ginkgo.It("should accept valid credentials", func() {
			service := newTestService(history, reader, storage, interpreter, summarizer)
			server := NewServerWithMux(service, auth, http.NewServeMux())
			ghttpServer.AppendHandlers(server.ServeHTTP)

			req, _ := http.NewRequest("GET", ghttpServer.URL()+"/api/receipts", nil)
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		ginkgo.It("should leave the health check open", func() {
			resp, _ := do("GET", "/health", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	ginkgo.Describe("POST /api/interpret", func() {
		ginkgo.It("should return the interpreted receipt", func() {
			resp, body := doJSON("POST", "/api/interpret", map[string]string{"ocrText": "STORE A\nTOTAL 5.00"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			out := decode(body)
			Expect(out["success"]).To(BeTrue())
			Expect(out["data"].(map[string]interface{})["vendor"]).To(Equal("STORE A"))
		})

		ginkgo.It("should reject bodies that are not JSON", func() {
			resp, _ := do("POST", "/api/interpret", strings.NewReader("nope"), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		ginkgo.DescribeTable("maps pipeline errors to status codes",
			func(err error, status int) {
				interpreter.err = err
				resp, body := doJSON("POST", "/api/interpret", map[string]string{"ocrText": "x"})
				Expect(resp.StatusCode).To(Equal(status))
				Expect(decode(body)).To(HaveKey("error"))
			},
			ginkgo.Entry("bad request", fmt.Errorf("%w: empty", interpret.ErrBadRequest), http.StatusBadRequest),
			ginkgo.Entry("upstream", fmt.Errorf("%w: refused", llm.ErrUpstreamUnavailable), http.StatusBadGateway),
			ginkgo.Entry("timeout", fmt.Errorf("%w: deadline", llm.ErrTimeout), http.StatusGatewayTimeout),
			ginkgo.Entry("rejected", fmt.Errorf("%w: status 404", llm.ErrRequestRejected), http.StatusBadGateway),
			ginkgo.Entry("empty completion", llm.ErrEmptyCompletion, http.StatusBadGateway),
			ginkgo.Entry("incomplete", &interpret.IncompleteDataError{Missing: []string{"vendor"}}, http.StatusUnprocessableEntity),
			ginkgo.Entry("unexpected", errors.New("boom"), http.StatusInternalServerError),
		)

		ginkgo.It("should expose the raw model text on parse failures", func() {
			interpreter.err = &interpret.MalformedResponseError{Raw: "not json", Err: errors.New("invalid character")}
			resp, body := doJSON("POST", "/api/interpret", map[string]string{"ocrText": "x"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			out := decode(body)
			Expect(out["rawResponse"]).To(Equal("not json"))
			Expect(out["details"]).To(Equal("invalid character"))
		})

		ginkgo.It("should not leak internal error details", func() {
			interpreter.err = errors.New("secret stack trace")
			_, body := doJSON("POST", "/api/interpret", map[string]string{"ocrText": "x"})
			Expect(decode(body)["error"]).To(Equal("Internal server error"))
		})
	})

	ginkgo.Describe("GET /api/interpret", func() {
		ginkgo.It("should describe the endpoint", func() {
			resp, body := do("GET", "/api/interpret", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(body)["method"]).To(Equal("POST"))
		})
	})

	ginkgo.Describe("POST /api/summarize", func() {
		ginkgo.It("should return the summary", func() {
			resp, body := doJSON("POST", "/api/summarize", map[string]interface{}{
				"type":    "single",
				"receipt": map[string]interface{}{"vendor": "Cafe", "total": 4.5},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(body)["summary"]).To(Equal("Nice."))
			Expect(summarizer.requests[0].Receipt.Vendor).To(Equal("Cafe"))
		})

		ginkgo.It("should map invalid requests to 400", func() {
			summarizer.err = fmt.Errorf("%w: missing type", summary.ErrInvalidSummaryRequest)
			resp, _ := doJSON("POST", "/api/summarize", map[string]interface{}{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("POST /api/ocr", func() {
		ginkgo.It("should return the stored path and text", func() {
			resp, body := upload("/api/ocr", "scan.png", []byte("png"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			out := decode(body)
			Expect(out["storedPath"]).To(Equal("uploads/2025-03-15/id-1.png"))
			Expect(out["text"]).To(Equal("STORE A\nTOTAL 5.00"))
		})

		ginkgo.It("should require a file", func() {
			resp, _ := do("POST", "/api/ocr", strings.NewReader(""), "multipart/form-data; boundary=x")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		ginkgo.It("should report unreadable documents", func() {
			reader.err = scanning.ErrNoText
			resp, _ := upload("/api/ocr", "blank.png", []byte("png"))
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		})
	})

	ginkgo.Describe("POST /api/receipts/scan", func() {
		ginkgo.It("should return a draft", func() {
			resp, body := upload("/api/receipts/scan", "scan.jpg", []byte("jpg"))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			out := decode(body)
			Expect(out["vendor"]).To(Equal("STORE A"))
			Expect(out["rawText"]).To(Equal("STORE A\nTOTAL 5.00"))
			Expect(out["confirmed"]).To(BeFalse())
		})
	})

	ginkgo.Describe("receipts", func() {
		ginkgo.It("should list receipts newest first", func() {
			resp, body := do("GET", "/api/receipts", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var receipts []Receipt
			Expect(json.Unmarshal(body, &receipts)).To(Succeed())
			Expect(receipts).To(HaveLen(2))
			Expect(receipts[0].ID).To(Equal("r2"))
		})

		ginkgo.It("should apply query filters", func() {
			_, body := do("GET", "/api/receipts?category=Restaurants", nil, "")
			var receipts []Receipt
			Expect(json.Unmarshal(body, &receipts)).To(Succeed())
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0].ID).To(Equal("r1"))
		})

		ginkgo.It("should create a confirmed receipt", func() {
			resp, body := doJSON("POST", "/api/receipts", Draft{
				Vendor: "STORE A", Date: "2025-03-10", Total: 5, Category: CategoryGroceries, Confirmed: true,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(decode(body)["id"]).To(Equal("id-1"))
			Expect(history.receipts).To(HaveLen(3))
		})

		ginkgo.It("should refuse unconfirmed drafts", func() {
			resp, _ := doJSON("POST", "/api/receipts", Draft{Vendor: "STORE A", Total: 5, Category: CategoryGroceries})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(history.receipts).To(HaveLen(2))
		})

		ginkgo.It("should get a receipt", func() {
			resp, body := do("GET", "/api/receipts/r1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(body)["vendor"]).To(Equal("Cafe"))
		})

		ginkgo.It("should return 404 for unknown receipts", func() {
			resp, _ := do("GET", "/api/receipts/nope", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		ginkgo.It("should delete a receipt", func() {
			resp, _ := do("DELETE", "/api/receipts/r1", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(history.receipts).To(HaveLen(1))
		})

		ginkgo.It("should toggle favorite and pinned", func() {
			resp, body := do("POST", "/api/receipts/r1/favorite", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(body)["favorite"]).To(BeTrue())

			_, body = do("POST", "/api/receipts/r1/pin", nil, "")
			Expect(decode(body)["pinned"]).To(BeTrue())
		})

		ginkgo.It("should update notes", func() {
			resp, body := doJSON("PUT", "/api/receipts/r2/notes", map[string]string{"notes": "weekly shop"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(body)["notes"]).To(Equal("weekly shop"))
		})

		ginkgo.It("should regenerate the summary", func() {
			resp, body := do("POST", "/api/receipts/r2/summary", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(body)["summary"]).To(Equal("Nice."))
		})
	})

	ginkgo.Describe("exports", func() {
		ginkgo.It("should download all receipts as CSV", func() {
			resp, body := do("GET", "/api/receipts/export.csv", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("text/csv"))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("receipts.csv"))
			Expect(strings.Count(string(body), "\n")).To(Equal(3))
		})

		ginkgo.It("should download a single receipt as CSV", func() {
			resp, body := do("GET", "/api/receipts/r1/export.csv", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("Cafe"))
			Expect(string(body)).NotTo(ContainSubstring("Market"))
		})

		ginkgo.It("should download an Excel workbook", func() {
			resp, body := do("GET", "/api/receipts/export.xlsx?ids=r1,r2", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("spreadsheetml"))
			Expect(body[:2]).To(Equal([]byte("PK")))
		})
	})

	ginkgo.Describe("analytics", func() {
		ginkgo.It("should return the report", func() {
			resp, body := do("GET", "/api/analytics", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			out := decode(body)
			Expect(out["count"]).To(BeNumerically("==", 2))
			Expect(out["averageTicket"]).To(BeNumerically("==", 15))
		})

		ginkgo.It("should summarize the history", func() {
			resp, body := do("POST", "/api/analytics/summary", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(body)["summary"]).To(Equal("Nice."))
			Expect(summarizer.requests[0].Type).To(Equal(summary.TypeBulk))
		})
	})

	ginkgo.Describe("files", func() {
		ginkgo.It("should serve stored uploads", func() {
			storage.files["uploads/2025-03-15/x.png"] = []byte("\x89PNG\r\n\x1a\n")
			resp, body := do("GET", "/files/uploads/2025-03-15/x.png", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			Expect(body).To(HaveLen(8))
		})

		ginkgo.It("should return 404 for missing files", func() {
			resp, _ := do("GET", "/files/uploads/none.png", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})
})
