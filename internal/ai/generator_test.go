package ai

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadgenie/loadgenie/internal/script"
)

const generatedScript = `import http from 'k6/http';
import { check, sleep } from 'k6';

export const options = { vus: 1, duration: '10s' };

export default function () {
  const res = http.get('https://test.k6.io');
  check(res, { 'has body': (r) => r.body.length > 0 });
  sleep(1);
}`

func scriptReply(t *testing.T, src string) reply {
	t.Helper()
	b, err := json.Marshal(map[string]string{"k6_script": src})
	require.NoError(t, err)
	return reply{chunks: []string{string(b)}}
}

func TestGenerate(t *testing.T) {
	fm := &fakeModel{replies: []reply{scriptReply(t, "\n"+generatedScript+"\n")}}
	g := NewGenerator(New(fm, testConfig(), nil))

	src, err := g.Generate(context.Background(), "  hit the homepage with one user  ")

	require.NoError(t, err)
	assert.Equal(t, generatedScript, src)
}

func TestGenerateRejectsShortDescription(t *testing.T) {
	fm := &fakeModel{replies: []reply{scriptReply(t, generatedScript)}}
	g := NewGenerator(New(fm, testConfig(), nil))

	_, err := g.Generate(context.Background(), "short")

	assert.ErrorIs(t, err, script.ErrDescriptionTooShort)
	assert.Equal(t, 0, fm.Calls())
}

func TestGenerateEmptyScriptIsPermanent(t *testing.T) {
	fm := &fakeModel{replies: []reply{scriptReply(t, "")}}
	g := NewGenerator(New(fm, testConfig(), nil))

	_, err := g.Generate(context.Background(), "hit the homepage with one user")

	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, fm.Calls())
}

func TestGenerateWithoutClient(t *testing.T) {
	g := NewGenerator(nil)

	_, err := g.Generate(context.Background(), "hit the homepage with one user")

	assert.ErrorIs(t, err, ErrDisabled)
}

func TestGenerateEnhanced(t *testing.T) {
	fm := &fakeModel{replies: []reply{scriptReply(t, generatedScript)}}
	g := NewGenerator(New(fm, testConfig(), nil))

	res, err := g.GenerateEnhanced(context.Background(), "hit the homepage with one user")

	require.NoError(t, err)
	assert.True(t, res.Report.IsValid)
	assert.False(t, res.Enhanced, "a script scoring 70 is not enhanced")
	assert.Equal(t, 70, res.Report.Score)
}
