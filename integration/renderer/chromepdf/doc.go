// Package chromepdf renders certificate artifacts to PDF through headless
// Chrome.
//
// Template markup and stylesheet are merged with recipient data using
// html/template, wrapped into a complete HTML document, and printed to PDF
// over the DevTools protocol. When a verification base URL is configured,
// each render gets a QR code pointing at the public verification page for
// the certificate, exposed to templates as .verifyQR (a PNG data URI) and
// .verifyUrl.
//
// Rendering is treated as a pure function of template source and data; the
// caller owns timeouts through the context.
package chromepdf
