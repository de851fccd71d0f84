package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/dirk.krummacker/person-service/pkg/model"
)

// Usage example on the command line:
// > go run main.go -base=http://localhost:8080
func main() {
	base := flag.String("base", "http://localhost:8080", "the base URL of the person service")
	flag.Parse()

	fmt.Println()
	fmt.Println("  Elements      POST       PUT       GET    DELETE ")
	fmt.Println("---------------------------------------------------")
	sizes := []int{1000, 5000, 10000, 50000, 100000}
	for _, loops := range sizes {
		fmt.Printf("%10d", loops)

		// POST requests
		persons := make([]model.Person, 0, loops)
		var duration int64
		for i := 0; i < loops; i++ {
			p, d := sendPostRequest(*base, newDraft(i))
			persons = append(persons, p)
			duration += d
		}
		fmt.Printf("%10d", duration/int64(loops*1000))

		// PUT requests
		callInLoop(persons, func(p model.Person) int64 {
			p.LastName = "Antonius"
			body, _ := json.Marshal(p)
			_, d := sendRequest(http.MethodPut, personalIdURL(*base, p), bytes.NewReader(body), http.StatusNoContent)
			return d
		})
		// GET requests
		callInLoop(persons, func(p model.Person) int64 {
			_, d := sendRequest(http.MethodGet, fmt.Sprintf("%s/api/person/%d", *base, p.Id), nil, http.StatusOK)
			return d
		})
		// DELETE requests
		callInLoop(persons, func(p model.Person) int64 {
			_, d := sendRequest(http.MethodDelete, personalIdURL(*base, p), nil, http.StatusNoContent)
			return d
		})
		fmt.Println()
	}
}

func newDraft(i int) model.Person {
	gender := "female"
	if i%2 == 1 {
		gender = "male"
	}
	return model.Person{FirstName: "Marcus", LastName: "Aurelius", Gender: gender}
}

func personalIdURL(base string, p model.Person) string {
	return fmt.Sprintf("%s/api/person/personalid/%s", base, p.PersonalId)
}

// callInLoop calls f once per person in random order and prints the mean duration in
// microseconds.
func callInLoop(persons []model.Person, f func(p model.Person) int64) {
	shuffled := make([]model.Person, len(persons))
	copy(shuffled, persons)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	var duration int64
	for _, p := range shuffled {
		duration += f(p)
	}
	fmt.Printf("%10d", duration/int64(len(persons)*1000))
}

func sendPostRequest(base string, draft model.Person) (model.Person, int64) {
	body, err := json.Marshal(draft)
	if err != nil {
		logrus.WithError(err).Fatal("could not marshal JSON")
	}
	resBody, duration := sendRequest(http.MethodPost, base+"/api/person", bytes.NewReader(body), http.StatusCreated)
	var p model.Person
	if err := json.Unmarshal(resBody, &p); err != nil {
		logrus.WithError(err).Fatal("could not unmarshal JSON")
	}
	return p, duration
}

// sendRequest executes the request and returns the response body and the duration in
// nanoseconds. Any status other than want ends the program.
func sendRequest(method string, requestURL string, bodyReader io.Reader, want int) ([]byte, int64) {
	req, err := http.NewRequest(method, requestURL, bodyReader)
	if err != nil {
		logrus.WithError(err).Fatal("could not create request")
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	before := time.Now()
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		logrus.WithError(err).Fatal("error making http request")
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		logrus.WithError(err).Fatal("could not read response body")
	}
	duration := time.Since(before).Nanoseconds()
	if res.StatusCode != want {
		var apiErr model.Error
		_ = json.Unmarshal(resBody, &apiErr)
		logrus.WithFields(logrus.Fields{
			"method": method,
			"url":    requestURL,
			"status": res.StatusCode,
		}).Fatal(apiErr.Message)
	}
	return resBody, duration
}
