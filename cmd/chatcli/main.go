// Command chatcli talks to a running relay over HTTP or websocket
package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

type frame struct {
	Type    string         `json:"type"`
	Content map[string]any `json:"content,omitempty"`
}

var httpClient = &http.Client{Timeout: 2 * time.Minute}

func main() {
	baseURL := flag.String("url", "http://localhost:8787", "Relay base URL")
	session := flag.String("session", "", "Session ID (assigned by the server when empty)")
	message := flag.String("message", "", "Send one chat message and print the reply")
	audioPath := flag.String("audio", "", "Transcribe an audio file, then send the transcript as a chat message")
	encoding := flag.String("encoding", "", "Encoding of -audio when it is raw (mulaw, alaw, pcm16)")
	say := flag.String("say", "", "Synthesize text and write the audio to -out")
	out := flag.String("out", "speech.mp3", "Output file for -say")
	interactive := flag.Bool("ws", false, "Chat interactively over the websocket")
	flag.Parse()

	var err error
	switch {
	case *message != "":
		err = chat(*baseURL, *session, *message)
	case *audioPath != "":
		err = transcribeAndChat(*baseURL, *session, *audioPath, *encoding)
	case *say != "":
		err = synthesize(*baseURL, *say, *out)
	case *interactive:
		err = runWebSocket(*baseURL, *session)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func postJSON(endpoint string, body any) (*http.Response, error) {
	data, err := sonic.Marshal(body)
	if err != nil {
		return nil, err
	}
	return httpClient.Post(endpoint, "application/json", bytes.NewReader(data))
}

func decodeResponse(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, data)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed (%d): %v", resp.StatusCode, out["error"])
	}
	return out, nil
}

func chat(baseURL, session, message string) error {
	resp, err := postJSON(baseURL+"/api/chat", map[string]string{"message": message, "sessionId": session})
	if err != nil {
		return err
	}
	out, err := decodeResponse(resp)
	if err != nil {
		return err
	}

	fmt.Printf("[%v] %v\n", out["sessionId"], out["response"])
	if fallback, ok := out["fallback"]; ok {
		fmt.Printf("(fallback: %v)\n", fallback)
	}
	return nil
}

func transcribeAndChat(baseURL, session, path, encoding string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if encoding != "" {
		if err := writer.WriteField("encoding", encoding); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := httpClient.Post(baseURL+"/api/transcribe", writer.FormDataContentType(), body)
	if err != nil {
		return err
	}
	out, err := decodeResponse(resp)
	if err != nil {
		return err
	}

	text, _ := out["text"].(string)
	fmt.Printf("Transcript: %s\n", text)
	if fallback, _ := out["fallback"].(bool); fallback || text == "" {
		return nil
	}
	return chat(baseURL, session, text)
}

func synthesize(baseURL, text, outPath string) error {
	resp, err := postJSON(baseURL+"/api/synthesize", map[string]string{"text": text})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		_, err := decodeResponse(resp)
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes of %s to %s\n", n, resp.Header.Get("Content-Type"), outPath)
	return nil
}

func runWebSocket(baseURL, session string) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	if session != "" {
		u.RawQuery = url.Values{"sessionId": {session}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := sonic.Unmarshal(data, &f); err != nil {
				continue
			}
			printFrame(f)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("Type a message, /audio <file> to send a recording, /ping, or Ctrl+C to quit")
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return closeSocket(conn, done)
			}
			if err := sendLine(conn, strings.TrimSpace(line)); err != nil {
				return err
			}
		case <-done:
			return nil
		case <-interrupt:
			return closeSocket(conn, done)
		}
	}
}

func sendLine(conn *websocket.Conn, line string) error {
	var f frame
	switch {
	case line == "":
		return nil
	case line == "/ping":
		f = frame{Type: "ping"}
	case strings.HasPrefix(line, "/audio "):
		data, err := os.ReadFile(strings.TrimSpace(strings.TrimPrefix(line, "/audio ")))
		if err != nil {
			fmt.Println("error:", err)
			return nil
		}
		f = frame{Type: "audio", Content: map[string]any{"data": base64.StdEncoding.EncodeToString(data)}}
	default:
		f = frame{Type: "chat", Content: map[string]any{"message": line}}
	}

	data, err := sonic.Marshal(f)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func printFrame(f frame) {
	switch f.Type {
	case "session":
		fmt.Printf("Session: %v\n", f.Content["sessionId"])
	case "history":
		messages, _ := f.Content["messages"].([]any)
		fmt.Printf("(%d earlier messages)\n", len(messages))
	case "typing":
		fmt.Println("...")
	case "chat":
		fmt.Printf("> %v\n", f.Content["content"])
	case "transcript":
		fmt.Printf("You said: %v\n", f.Content["text"])
	case "pong":
		fmt.Println("pong")
	case "error":
		fmt.Printf("error [%v]: %v\n", f.Content["code"], f.Content["message"])
	}
}

func closeSocket(conn *websocket.Conn, done chan struct{}) error {
	err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}
