package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", ""},
		{"plain text", "just text", "just text"},
		{"inline markup", "<p>Hi <b>Bob</b>,</p>", "Hi Bob,"},
		{"paragraphs", "<p>one</p><p>two</p>", "one\ntwo"},
		{"br", "a<br>b<br/><br><br>c", "a\nb\n\nc"},
		{"whitespace collapsed", "<div>  lots \n\t of   space </div>", "lots of space"},
		{"link with different text", `<p>See <a href="https://x.test/docs">the docs</a> now</p>`, "See the docs [https://x.test/docs] now"},
		{"link equal to text", `<a href="https://x.test">https://x.test</a>`, "https://x.test"},
		{"mailto link", `<a href="mailto:bob@x.test">bob@x.test</a>`, "bob@x.test"},
		{"image dropped", `<p>pic: <img src="a.png" alt="A"> end</p>`, "pic: end"},
		{"script and style dropped", `<style>p{color:red}</style><script>alert(1)</script><p>body</p>`, "body"},
		{"list", "<ul><li>one</li><li>two</li></ul>", "* one\n* two"},
		{"entities", "<p>Tom &amp; Jerry &lt;3</p>", "Tom & Jerry <3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTMLToText(tt.in))
		})
	}
}
