package resolver

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"dmlive/internal/perr"
)

// Douyu resolves a room's H5 play info. The site guards that API behind an
// obfuscated JS challenge embedded in the room page; Douyu patches and
// evaluates that challenge through a ScriptEvaluator collaborator to
// recover the `v`/`sign` parameters, then calls getH5Play. Ported from
// streamfinder/douyu.rs.
type Douyu struct {
	Eval ScriptEvaluator
}

const (
	douyuAPIRoomInfo = "https://www.douyu.com/betard/"
	douyuAPIH5Play   = "https://www.douyu.com/lapi/live/getH5Play/"
)

var douyuChallengePattern = regexp.MustCompile(`(?s)(var vdwdae325w_64we =[\s\S]+?)\s*</script>`)
var douyuVParamPattern = regexp.MustCompile(`v=(\d+)`)
var douyuSignParamPattern = regexp.MustCompile(`sign=(\w{32})`)

func (d *Douyu) Resolve(ctx context.Context, roomURL, _ string) (Result, error) {
	if d.Eval == nil {
		d.Eval = NodeEvaluator{}
	}

	u, err := url.Parse(roomURL)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindDecode, "douyu.parse_room_url", err)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	rid := segs[len(segs)-1]

	pageResp, err := httpGet(ctx, roomURL, map[string]string{"Referer": "https://www.douyu.com/"})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "douyu.page", err)
	}
	defer pageResp.Body.Close()
	pageBody, err := io.ReadAll(pageResp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "douyu.page.read", err)
	}

	cm := douyuChallengePattern.FindSubmatch(pageBody)
	if cm == nil {
		return Result{}, perr.Wrap(perr.KindDecode, "douyu.page.parse", errNoMatch("vdwdae325w_64we challenge"))
	}
	jsEnc := string(cm[1])

	did := strings.ReplaceAll(uuid.NewString(), "-", "")
	tsec := strconv.FormatInt(time.Now().Unix(), 10)

	out, err := d.Eval.Eval(ctx, douyuBuildScript(jsEnc, rid, did, tsec))
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "douyu.script_eval", err)
	}

	vm := douyuVParamPattern.FindStringSubmatch(out)
	sm := douyuSignParamPattern.FindStringSubmatch(out)
	if vm == nil || sm == nil {
		return Result{}, perr.Wrap(perr.KindDecode, "douyu.script_eval.parse", errNoMatch("v=/sign= in evaluator output"))
	}

	form := url.Values{}
	form.Set("v", vm[1])
	form.Set("sign", sm[1])
	form.Set("did", did)
	form.Set("tt", tsec)
	form.Set("cdn", "")
	form.Set("iar", "0")
	form.Set("ive", "0")
	form.Set("rate", "0")

	h5Resp, err := postForm(ctx, douyuAPIH5Play+rid, form, map[string]string{"Referer": "https://www.douyu.com/"})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "douyu.h5_play", err)
	}
	defer h5Resp.Body.Close()
	h5Body, err := io.ReadAll(h5Resp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "douyu.h5_play.read", err)
	}
	rtmpURL := gjson.GetBytes(h5Body, "data.rtmp_url").String()
	rtmpLive := gjson.GetBytes(h5Body, "data.rtmp_live").String()
	if rtmpURL == "" || rtmpLive == "" {
		return Result{}, perr.Wrap(perr.KindDecode, "douyu.h5_play.parse", errNoMatch("data.rtmp_url/rtmp_live"))
	}

	infoResp, err := httpGet(ctx, douyuAPIRoomInfo+rid, map[string]string{"Referer": "https://www.douyu.com/"})
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "douyu.room_info", err)
	}
	defer infoResp.Body.Close()
	infoBody, err := io.ReadAll(infoResp.Body)
	if err != nil {
		return Result{}, perr.Wrap(perr.KindTransient, "douyu.room_info.read", err)
	}
	roomName := gjson.GetBytes(infoBody, "room.room_name").String()
	nickname := gjson.GetBytes(infoBody, "room.nickname").String()

	return Result{
		Title: roomName + " - " + nickname,
		URLs:  []string{rtmpURL + "/" + rtmpLive},
	}, nil
}

// douyuRandomName mimics get_random_name: l lowercase letters, used for the
// patch's debug-namespace identifiers.
func douyuRandomName(l int) string {
	var b strings.Builder
	for i := 0; i < l; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(26))
		b.WriteByte(byte('a' + n.Int64()))
	}
	return b.String()
}

// douyuBuildScript wraps the page's obfuscated vdwdae325w_64we challenge
// with a CryptoJS MD5 shim, a minimal window/document stub, a patch that
// disarms the eval-based anti-tamper check, and a debug wrapper that
// captures ub98484234's return value to stdout — the same four-part
// concatenation build_js_all constructs in douyu.rs, adapted so the
// result can run under a bare `node` instead of inside a full browser DOM.
func douyuBuildScript(jsEnc, rid, did, tsec string) string {
	debugNS := douyuRandomName(8)
	codes := douyuRandomName(8)
	result := douyuRandomName(8)
	fnAlias := douyuRandomName(8)

	domShim := fmt.Sprintf(`
%s = {%s: []};
if (typeof window === 'undefined') { var window = {}; }
if (typeof document === 'undefined') { var document = {}; }
`, debugNS, codes)

	patch := fmt.Sprintf(`
%s.%s.push(workflow);
function patchCode(workflow) {
  var testVari = /(\w+)=(\w+)\([\w\+]+\);.*?(\w+)="\w+";/.exec(workflow);
  if (testVari && testVari[1] == testVari[2]) {
    workflow += testVari[1] + "[" + testVari[3] + "] = function() { return true; };";
  }
  return workflow;
}
workflow = patchCode(workflow);
eval(workflow);
`, debugNS, codes)

	jsEnc = strings.Replace(jsEnc, "eval(workflow);", patch, 1)

	debug := fmt.Sprintf(`
var %s = ub98484234;
ub98484234 = function(p1, p2, p3) {
  try {
    var result = %s(p1, p2, p3);
    %s.%s = result;
  } catch (e) {
    %s.%s = e.message;
  }
  return %s.%s;
};
var tmp = ub98484234("%s", "%s", %s);
console.log(tmp);
`, fnAlias, fnAlias, debugNS, result, debugNS, result, debugNS, result, rid, did, tsec)

	return douyuCryptoJSMD5 + domShim + jsEnc + debug
}
