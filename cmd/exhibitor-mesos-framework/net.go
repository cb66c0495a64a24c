package main

import (
	"net"
	"net/http"
	"strconv"
)

func listenAndServeMux(addr string, mux *http.ServeMux) error {
	return http.ListenAndServe(addr, mux)
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func portString(port int) string {
	return strconv.Itoa(port)
}
