// relayctl is a small operator CLI for a running relay instance: it
// queries the admin HTTP surface for status and outstanding warnings.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8080", "relay admin HTTP base address")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: relayctl [-addr URL] <status|warnings|ack ID>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := &http.Client{Timeout: 5 * time.Second}

	var err error
	switch args[0] {
	case "status":
		err = get(client, *addr+"/status")
	case "warnings":
		err = get(client, *addr+"/warnings")
	case "ack":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: relayctl ack <warning-id>")
			os.Exit(2)
		}
		err = post(client, *addr+"/warnings/"+args[1]+"/ack")
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "relayctl:", err)
		os.Exit(1)
	}
}

func get(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func post(client *http.Client, url string) error {
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}

	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
