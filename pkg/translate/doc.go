// Package translate converts between the public chat formats, a canonical
// request, and the vendor's connect+protobuf streaming protocol.
//
// All conversions are stateless except FrameReader and Stream, which hold
// per-request framing state. A FrameReader is not safe for concurrent use.
//
// Request direction:
//
//	req, err := translate.DecodeAnthropic(body)
//	payload, err := translate.EncodeChatBody(req, translate.EncodeOptions{})
//
// Response direction:
//
//	reader := translate.NewFrameReader()
//	deltas, err := reader.Feed(chunk)
//	for _, d := range deltas {
//		// d.Kind is TextDelta or ErrorDelta
//	}
package translate
