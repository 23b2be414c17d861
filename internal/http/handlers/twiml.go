package handlers

import (
	"encoding/xml"
	"net/http"
)

// Minimal TwiML for a speech-gathering voice bot.
// Twilio expects Content-Type: text/xml.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Gather  *twimlGather `xml:"Gather,omitempty"`
	Say     *twimlSay    `xml:"Say,omitempty"`
	Hangup  *twimlHangup `xml:"Hangup,omitempty"`
}

type twimlGather struct {
	Input         string    `xml:"input,attr"`
	Action        string    `xml:"action,attr"`
	Method        string    `xml:"method,attr"`
	SpeechTimeout string    `xml:"speechTimeout,attr"`
	Language      string    `xml:"language,attr"`
	Say           *twimlSay `xml:"Say,omitempty"`
}

type twimlSay struct {
	Voice    string `xml:"voice,attr,omitempty"`
	Language string `xml:"language,attr,omitempty"`
	Text     string `xml:",chardata"`
}

type twimlHangup struct{}

func writeTwiML(w http.ResponseWriter, resp *twimlResponse) {
	body, err := xml.Marshal(resp)
	if err != nil {
		http.Error(w, "twiml encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}
