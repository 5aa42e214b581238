package provider

import (
	"encoding/base64"
)

const lister = `<div class="eplister"><ul>
	<li><a href="{{origin}}/frieren-episode-2/"><div class="epl-num">2</div><div class="epl-title">Episode 2</div></a></li>
	<li><a href="{{origin}}/frieren-episode-1/"><div class="epl-num">1</div><div class="epl-title">Episode 1</div></a></li>
	<li><a href="https://other.example/frieren-episode-3/"><div class="epl-num">3</div></a></li>
</ul></div>`

func mirror(src string) string {
	return base64.StdEncoding.EncodeToString([]byte(`<iframe src="` + src + `" frameborder="0"></iframe>`))
}

func mirrors(f *fixture) string {
	return `<select class="mirror">
		<option value="">Select Video Server</option>
		<option value="` + mirror(f.embedURL()+"/e/m1") + `">Main</option>
		<option value="` + mirror("//unknown.example/e/m2") + `">Backup</option>
		<option value="not base64!">Broken</option>
	</select>`
}
