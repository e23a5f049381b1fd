package script

// retryHelper is prepended verbatim to low-scoring scripts that have no retry
// idiom of their own.
const retryHelper = `// Retry and response validation helper
function requestWithRetry(fn, maxRetries = 3) {
  let res;
  for (let attempt = 1; attempt <= maxRetries; attempt++) {
    try {
      res = fn();
      if (res && res.status >= 200 && res.status < 500) {
        return res;
      }
      console.warn(` + "`attempt ${attempt} failed with status ${res ? res.status : 'none'}`" + `);
    } catch (err) {
      console.error(` + "`attempt ${attempt} threw: ${err}`" + `);
    }
  }
  return res;
}

function validateResponse(res, expectedStatus = 200) {
  return !!res && res.status === expectedStatus && typeof res.body !== 'undefined';
}

`

// Enhance prepends the retry helper when src has no retry idiom.
func Enhance(src string) (string, bool) {
	if retryPattern.MatchString(src) {
		return src, false
	}
	return retryHelper + src, true
}
