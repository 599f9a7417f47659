package bill

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		recognizer  *mockRecognizer
		gw          *mockGateway
		service     *Service
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		recognizer = newMockRecognizer()
		gw = newMockGateway()
		service = NewServiceWithDeps(db, recognizer, storage, gw,
			&fixedIDGenerator{id: "test-id"}, &defaultTimeSource{})
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	uploadReceipt := func() *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "receipt.jpg")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("image data"))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/drafts/scan", body)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleScanReceipt", func() {
		When("a receipt image is uploaded", func() {
			It("should return status Created with the pre-filled draft", func() {
				resp := uploadReceipt()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var draft Draft
				Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
				Expect(draft.ID).To(Equal("test-id"))
				Expect(draft.Company).To(Equal("Acme Corp"))
				Expect(draft.Amount).To(Equal("1234.56"))
				Expect(draft.Date).To(Equal("12/03/2024"))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.Close()).To(Succeed())

				req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/drafts/scan", body)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Content-Type", writer.FormDataContentType())

				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				recognizer.err = errors.New("ocr unavailable")
			})

			It("should still return a draft with empty fields", func() {
				resp := uploadReceipt()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var draft Draft
				Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
				Expect(draft.Company).To(BeEmpty())
				Expect(draft.Amount).To(BeEmpty())
				Expect(draft.Date).To(BeEmpty())
			})
		})

		When("the draft cannot be persisted", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("disk full")
			})

			It("should return status Internal Server Error", func() {
				resp := uploadReceipt()
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})

		When("another scan is still running", func() {
			var blocking *blockingRecognizer

			BeforeEach(func() {
				blocking = newBlockingRecognizer()
				service = NewServiceWithDeps(db, blocking, storage, gw,
					&fixedIDGenerator{id: "test-id"}, &defaultTimeSource{})
				setupServer()
			})

			It("should return status Conflict", func() {
				ghttpServer.AppendHandlers(server.ServeHTTP)

				firstDone := make(chan *http.Response, 1)
				go func() {
					defer GinkgoRecover()
					firstDone <- uploadReceipt()
				}()
				<-blocking.entered

				resp := uploadReceipt()
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))

				close(blocking.release)
				first := <-firstDone
				first.Body.Close()
				Expect(first.StatusCode).To(Equal(http.StatusCreated))
			})
		})
	})

	Describe("handleCreateDraft", func() {
		var reqBody string

		BeforeEach(func() {
			reqBody = `{
				"company": "Manual Entry SA",
				"amount": "99.99",
				"date": "01/01/2025",
				"category": "TRANSPORT",
				"type": "INCOME"
			}`
		})

		It("should return status Created with the draft", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/drafts", "application/json",
				bytes.NewBufferString(reqBody))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var draft Draft
			Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
			Expect(draft.Company).To(Equal("Manual Entry SA"))
		})

		When("the category is not in the closed set", func() {
			BeforeEach(func() {
				reqBody = `{"company": "X", "amount": "1", "date": "01/01/2025", "category": "NOPE", "type": "EXPENSE"}`
			})

			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/drafts", "application/json",
					bytes.NewBufferString(reqBody))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleListDrafts", func() {
		When("drafts exist", func() {
			BeforeEach(func() {
				db.drafts["id1"] = &Draft{ID: "id1", Company: "First"}
				db.drafts["id2"] = &Draft{ID: "id2", Company: "Second"}
			})

			It("should return all drafts as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/drafts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var drafts []*Draft
				Expect(json.NewDecoder(resp.Body).Decode(&drafts)).To(Succeed())
				Expect(drafts).To(HaveLen(2))
			})
		})

		When("no drafts exist", func() {
			It("should return an empty array, not null", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/drafts")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(MatchJSON("[]"))
			})
		})
	})

	Describe("handleGetDraft", func() {
		BeforeEach(func() {
			db.drafts["id1"] = &Draft{ID: "id1", Company: "Acme Corp"}
		})

		It("should return the draft", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/drafts/id1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var draft Draft
			Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
			Expect(draft.Company).To(Equal("Acme Corp"))
		})

		When("the draft does not exist", func() {
			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/drafts/missing")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleUpdateDraft", func() {
		BeforeEach(func() {
			db.drafts["id1"] = &Draft{ID: "id1", Company: "Old Name", Category: CategoryHome, Type: TypeExpense}
		})

		It("should replace the draft fields", func() {
			reqBody := `{"company": "New Name", "amount": "5.00", "date": "01/01/2025", "category": "FOOD", "type": "EXPENSE"}`
			req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/drafts/id1",
				bytes.NewBufferString(reqBody))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var draft Draft
			Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
			Expect(draft.Company).To(Equal("New Name"))
		})
	})

	Describe("handleDeleteDraft", func() {
		BeforeEach(func() {
			db.drafts["id1"] = &Draft{ID: "id1"}
		})

		It("should return status No Content", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/drafts/id1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.drafts).NotTo(HaveKey("id1"))
		})
	})

	Describe("handleGetDraftFile", func() {
		BeforeEach(func() {
			db.drafts["id1"] = &Draft{ID: "id1", Filename: "id1_receipt.jpg", ContentType: "image/jpeg"}
			storage.files["id1_receipt.jpg"] = []byte("image data")
		})

		It("should return the image with its content type", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/drafts/id1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(Equal([]byte("image data")))
		})
	})

	Describe("handleSubmitDraft", func() {
		submitDraft := func(id string) *http.Response {
			resp, err := http.Post(ghttpServer.URL()+"/api/drafts/"+id+"/submit",
				"application/json", bytes.NewBufferString(`{"userId": 1}`))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		BeforeEach(func() {
			db.drafts["id1"] = &Draft{
				ID:       "id1",
				Company:  "Café Luna",
				Amount:   "45.00",
				Date:     "12/03/2024",
				Category: CategoryFood,
				Type:     TypeExpense,
			}
		})

		When("submission succeeds", func() {
			It("should return status Created with the backend record", func() {
				resp := submitDraft("id1")
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(MatchJSON(`{"id": 42}`))
			})

			It("should consume the draft", func() {
				resp := submitDraft("id1")
				resp.Body.Close()
				Expect(db.drafts).NotTo(HaveKey("id1"))
			})
		})

		When("the amount is not parseable", func() {
			BeforeEach(func() {
				db.drafts["id1"].Amount = "abc"
			})

			It("should return status Unprocessable Entity", func() {
				resp := submitDraft("id1")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})

			It("should keep the draft", func() {
				resp := submitDraft("id1")
				resp.Body.Close()
				Expect(db.drafts).To(HaveKey("id1"))
			})
		})

		When("the draft does not exist", func() {
			It("should return status Not Found", func() {
				resp := submitDraft("missing")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("the backend rejects the submission", func() {
			BeforeEach(func() {
				gw.err = errors.New("backend unavailable")
			})

			It("should return status Bad Gateway", func() {
				resp := submitDraft("id1")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})

		When("another submission is still running", func() {
			var blocking *blockingGateway

			BeforeEach(func() {
				blocking = newBlockingGateway()
				service = NewServiceWithDeps(db, recognizer, storage, blocking,
					&fixedIDGenerator{id: "test-id"}, &defaultTimeSource{})
				setupServer()

				db.drafts["id2"] = &Draft{
					ID:       "id2",
					Company:  "Otra SA",
					Amount:   "10.00",
					Date:     "01/01/2025",
					Category: CategoryHome,
					Type:     TypeExpense,
				}
			})

			It("should return status Conflict", func() {
				ghttpServer.AppendHandlers(server.ServeHTTP)

				firstDone := make(chan *http.Response, 1)
				go func() {
					defer GinkgoRecover()
					firstDone <- submitDraft("id1")
				}()
				<-blocking.entered

				resp := submitDraft("id2")
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))

				close(blocking.release)
				first := <-firstDone
				first.Body.Close()
				Expect(first.StatusCode).To(Equal(http.StatusCreated))
			})
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		When("no credentials are provided", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/drafts")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("valid credentials are provided", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/drafts", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization",
					"Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})
})
