// Package tlsroots manages TLS material for peer traffic.
//
// LoadPool and ClientConfig build the trust roots used when probing https
// peers. CertReloader serves the HTTP server's certificate and reloads it
// when the files change on disk.
package tlsroots
