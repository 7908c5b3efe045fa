package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// envelope 接口统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func main() {
	base := flag.String("base", "http://localhost:8080", "Mapper API base URL")
	docURL := flag.String("url", "", "Document metadata URL to map")
	async := flag.Bool("async", false, "Submit through the task queue and poll for the result")
	wait := flag.Duration("wait", 5*time.Minute, "Maximum time to wait for an async mapping")
	flag.Parse()

	if *docURL == "" {
		fmt.Println("Usage: smoke -url <document metadata url> [-base http://localhost:8080] [-async]")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 10 * time.Minute}

	fmt.Println("\n=== Testing API Health ===")
	status, body, err := call(client, http.MethodGet, *base+"/api/health", nil)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Status: %d\nResponse: %s\n", status, body)

	if !*async {
		fmt.Println("\n=== Testing Synchronous Mapping ===")
		status, body, err = call(client, http.MethodPost, *base+"/map-regulations", map[string]string{"url": *docURL})
		if err != nil {
			fail(err)
		}
		fmt.Printf("Status: %d\nResponse: %s\n", status, body)
		return
	}

	fmt.Println("\n=== Submitting Mapping Task ===")
	status, body, err = call(client, http.MethodPost, *base+"/api/mappings", map[string]string{"url": *docURL})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Status: %d\nResponse: %s\n", status, body)
	if status != http.StatusAccepted {
		os.Exit(1)
	}

	var submitted struct {
		MappingID string `json:"mapping_id"`
		TaskID    string `json:"task_id"`
	}
	if err := decode(body, &submitted); err != nil {
		fail(err)
	}

	fmt.Println("\n=== Polling Task Status ===")
	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		_, body, err = call(client, http.MethodGet, *base+"/api/tasks/"+submitted.TaskID, nil)
		if err != nil {
			fail(err)
		}

		var task struct {
			Status    string `json:"status"`
			ReportURL string `json:"report_url"`
			Error     string `json:"error"`
		}
		if err := decode(body, &task); err != nil {
			fail(err)
		}
		fmt.Printf("Task %s: %s\n", submitted.TaskID, task.Status)

		switch task.Status {
		case "completed":
			fmt.Printf("Report URL: %s\n", task.ReportURL)
			fmt.Println("\n=== Fetching Report ===")
			status, body, err = call(client, http.MethodGet, *base+"/api/mappings/"+submitted.MappingID+"/report", nil)
			if err != nil {
				fail(err)
			}
			fmt.Printf("Status: %d\nReport: %s\n", status, body)
			return
		case "failed":
			fmt.Printf("Mapping failed: %s\n", task.Error)
			os.Exit(1)
		}
		time.Sleep(2 * time.Second)
	}

	fmt.Println("Timed out waiting for mapping task")
	os.Exit(1)
}

// call 发送请求并读取完整响应
func call(client *http.Client, method, url string, payload interface{}) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

// decode 解析统一响应中的data字段
func decode(body []byte, v interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("invalid response: %v", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("request failed: %s", env.Message)
	}
	return json.Unmarshal(env.Data, v)
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}
