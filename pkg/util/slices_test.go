package util

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestSliceToMap(t *testing.T) {
	RegisterTestingT(t)

	res, err := SliceToMap([]string{"folderId=f-1", "query=a=b", " key =v", "folderId=f-2"})
	Expect(err).ToNot(HaveOccurred())
	Expect(res).To(Equal(map[string]string{
		"folderId": "f-2",
		"query":    "a=b",
		"key":      "v",
	}))

	_, err = SliceToMap([]string{"novalue"})
	Expect(err).To(MatchError(ContainSubstring(`"novalue"`)))

	_, err = SliceToMap([]string{"=v"})
	Expect(err).To(HaveOccurred())
}
