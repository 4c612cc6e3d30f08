// Command smoke exercises the public registration flow against a running
// instance. It is meant for post-deploy verification: it only performs
// reversible requests unless -confirmar is supplied.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type step struct {
	Name       string
	Method     string
	Path       string
	Body       map[string]string
	WantStatus []int
}

type result struct {
	Step     step
	Status   int
	Duration time.Duration
	Err      error
}

func main() {
	var (
		base     string
		dni      string
		codigo   string
		email    string
		telefono string
		password string
		confirm  string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&dni, "dni", "", "DNI of a pending pre-registration")
	flag.StringVar(&codigo, "codigo", "", "Enrollment code matching the DNI")
	flag.StringVar(&email, "email", "", "Email to register (required for -iniciar steps)")
	flag.StringVar(&telefono, "telefono", "", "Phone to register")
	flag.StringVar(&password, "password", "", "Password to register")
	flag.StringVar(&confirm, "confirmar", "", "Verification code; when set the flow is confirmed for real")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	if dni == "" || codigo == "" {
		fmt.Fprintln(os.Stderr, "both -dni and -codigo are required")
		os.Exit(2)
	}

	steps := []step{
		{
			Name:       "health",
			Method:     http.MethodGet,
			Path:       "/health",
			WantStatus: []int{http.StatusOK},
		},
		{
			Name:       "validar",
			Method:     http.MethodPost,
			Path:       "/api/v1/registro/validar",
			Body:       map[string]string{"codigo_estudiante": codigo, "dni": dni},
			WantStatus: []int{http.StatusOK},
		},
		{
			Name:       "validar dni ajeno",
			Method:     http.MethodPost,
			Path:       "/api/v1/registro/validar",
			Body:       map[string]string{"codigo_estudiante": codigo, "dni": "00000000"},
			WantStatus: []int{http.StatusUnprocessableEntity, http.StatusNotFound},
		},
	}

	if email != "" && password != "" {
		steps = append(steps, step{
			Name:       "iniciar",
			Method:     http.MethodPost,
			Path:       "/api/v1/registro/iniciar",
			Body:       map[string]string{"dni": dni, "email": email, "telefono": telefono, "password": password},
			WantStatus: []int{http.StatusOK},
		}, step{
			Name:       "reenviar en cooldown",
			Method:     http.MethodPost,
			Path:       "/api/v1/registro/reenviar",
			Body:       map[string]string{"dni": dni},
			WantStatus: []int{http.StatusTooManyRequests},
		})
	}

	if confirm != "" {
		steps = append(steps, step{
			Name:       "confirmar",
			Method:     http.MethodPost,
			Path:       "/api/v1/registro/confirmar",
			Body:       map[string]string{"dni": dni, "codigo": confirm},
			WantStatus: []int{http.StatusOK},
		})
	}

	client := &http.Client{Timeout: timeout}
	var failures int
	for _, st := range steps {
		res := run(client, base, st)
		if res.Err != nil || !statusAllowed(res.Status, st.WantStatus) {
			failures++
		}
		printResult(res)
	}

	fmt.Printf("Steps: %d, Failures: %d\n", len(steps), failures)
	if failures > 0 {
		os.Exit(1)
	}
}

func run(client *http.Client, base string, st step) result {
	res := result{Step: st}

	var body io.Reader
	if st.Body != nil {
		payload, err := json.Marshal(st.Body)
		if err != nil {
			res.Err = err
			return res
		}
		body = bytes.NewReader(payload)
	}

	url := strings.TrimRight(base, "/") + st.Path
	req, err := http.NewRequest(st.Method, url, body)
	if err != nil {
		res.Err = err
		return res
	}
	if st.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	res.Status = resp.StatusCode
	return res
}

func statusAllowed(got int, want []int) bool {
	for _, w := range want {
		if got == w {
			return true
		}
	}
	return false
}

func printResult(res result) {
	label := "PASS"
	if res.Err != nil || !statusAllowed(res.Status, res.Step.WantStatus) {
		label = "FAIL"
	}
	if res.Err != nil {
		fmt.Printf("[%s] %-22s %s\n", label, res.Step.Name, res.Err)
		return
	}
	fmt.Printf("[%s] %-22s status=%d took=%s\n", label, res.Step.Name, res.Status, res.Duration.Round(time.Millisecond))
}
